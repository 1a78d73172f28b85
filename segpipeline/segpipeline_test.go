package segpipeline_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore/memstore"
	"github.com/bbc/tams-core/repos"
	"github.com/bbc/tams-core/segpipeline"
)

// fakeObjStore is an in-memory objstore.Store test double: it tracks which
// object ids have had Put called (simulating the Phase B out-of-band
// upload) without ever touching a network.
type fakeObjStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
}

func newFakeObjStore() *fakeObjStore { return &fakeObjStore{uploaded: map[string][]byte{}} }

func (f *fakeObjStore) EnsureBucket(context.Context) error { return nil }

func (f *fakeObjStore) PresignPut(_ context.Context, objectID string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://fake/%s?op=put&exp=%d", objectID, time.Now().Add(ttl).Unix()), nil
}

func (f *fakeObjStore) PresignGet(_ context.Context, objectID string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://fake/%s?op=get&exp=%d", objectID, time.Now().Add(ttl).Unix()), nil
}

func (f *fakeObjStore) Put(_ context.Context, objectID string, src io.Reader, _ int64) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[objectID] = b
	return nil
}

func (f *fakeObjStore) Get(_ context.Context, objectID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.uploaded[objectID]
	if !ok {
		return nil, fmt.Errorf("not found: %s", objectID)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjStore) Head(_ context.Context, objectID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.uploaded[objectID]
	if !ok {
		return 0, fmt.Errorf("not found: %s", objectID)
	}
	return int64(len(b)), nil
}

func (f *fakeObjStore) Exists(_ context.Context, objectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.uploaded[objectID]
	return ok, nil
}

func (f *fakeObjStore) Delete(_ context.Context, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploaded, objectID)
	return nil
}

func (f *fakeObjStore) Copy(_ context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[dst] = f.uploaded[src]
	return nil
}

func newPipeline(t *testing.T) (*segpipeline.Pipeline, *fakeObjStore, *repos.FlowRepo) {
	t.Helper()
	ms := memstore.New()
	flowRepo := repos.NewFlowRepo(ms)
	objectRepo := repos.NewObjectRepo(ms)
	segRepo := repos.NewSegmentRepo(ms)
	backend := &core.StorageBackend{ID: "backend-1", Label: "default"}
	objs := newFakeObjStore()
	return segpipeline.New(backend, objs, objectRepo, flowRepo, segRepo, time.Hour, "tams"), objs, flowRepo
}

func mustCreateFlow(t *testing.T, flows *repos.FlowRepo, id string, readOnly bool) {
	t.Helper()
	f := &core.Flow{ID: id, Format: core.FormatData, ReadOnly: readOnly, Created: time.Now(), MetadataUpdated: time.Now(), SegmentsUpdated: time.Now()}
	if terr := flows.Create(context.Background(), f); terr != nil {
		t.Fatalf("create flow: %v", terr)
	}
}

func TestAllocateMintsDistinctIDsAndURLs(t *testing.T) {
	p, _, flows := newPipeline(t)
	mustCreateFlow(t, flows, "flow-1", false)

	res, terr := p.Allocate(context.Background(), "flow-1", nil, 3)
	if terr != nil {
		t.Fatalf("Allocate: %v", terr)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(res))
	}
	seen := map[string]bool{}
	for _, r := range res {
		if r.ObjectID == "" || r.PutURL == "" {
			t.Fatalf("allocation missing object id or put url: %+v", r)
		}
		if seen[r.ObjectID] {
			t.Fatalf("duplicate object id %s across one allocate call", r.ObjectID)
		}
		seen[r.ObjectID] = true
	}
}

// TestAllocateRejectsAlreadyExistingObjectIDs exercises the
// storage-allocation-uniqueness property: a caller-supplied id whose
// computed storage key already has bytes is rejected with BadRequest.
func TestAllocateRejectsAlreadyExistingObjectIDs(t *testing.T) {
	p, objs, flows := newPipeline(t)
	mustCreateFlow(t, flows, "flow-2", false)
	ctx := context.Background()

	first, terr := p.Allocate(ctx, "flow-2", nil, 1)
	if terr != nil {
		t.Fatalf("first Allocate: %v", terr)
	}
	if err := objs.Put(ctx, first[0].StoragePath, bytes.NewReader([]byte("hello")), 5); err != nil {
		t.Fatalf("fake Put: %v", err)
	}

	_, terr = p.Allocate(ctx, "flow-2", []string{first[0].ObjectID}, 0)
	if terr == nil {
		t.Fatal("expected BadRequest reusing an id whose storage key already has bytes")
	}
	if terr.HTTPStatus() != 400 {
		t.Fatalf("expected HTTP 400, got %d", terr.HTTPStatus())
	}
}

func TestAllocateForbiddenOnReadOnlyFlow(t *testing.T) {
	p, _, flows := newPipeline(t)
	mustCreateFlow(t, flows, "flow-ro", true)

	if _, terr := p.Allocate(context.Background(), "flow-ro", nil, 1); terr == nil {
		t.Fatal("expected Forbidden allocating storage on a read-only flow")
	} else if terr.HTTPStatus() != 403 {
		t.Fatalf("expected HTTP 403, got %d", terr.HTTPStatus())
	}
}

func TestRegisterRejectsUnuploadedObject(t *testing.T) {
	p, _, flows := newPipeline(t)
	mustCreateFlow(t, flows, "flow-3", false)
	ctx := context.Background()

	res, terr := p.Allocate(ctx, "flow-3", nil, 1)
	if terr != nil {
		t.Fatalf("Allocate: %v", terr)
	}
	// Phase B never happened: no Put call against the fake store.
	terr = p.Register(ctx, segpipeline.RegisterInput{
		FlowID: "flow-3", ObjectID: res[0].ObjectID, Timerange: "[0:0_1:0)", Size: 10,
	})
	if terr == nil {
		t.Fatal("expected BadRequest registering a segment whose object was never uploaded")
	}
}

func TestRegisterSucceedsAfterUpload(t *testing.T) {
	p, objs, flows := newPipeline(t)
	mustCreateFlow(t, flows, "flow-4", false)
	ctx := context.Background()

	res, terr := p.Allocate(ctx, "flow-4", nil, 1)
	if terr != nil {
		t.Fatalf("Allocate: %v", terr)
	}
	objectID := res[0].ObjectID
	if err := objs.Put(ctx, res[0].StoragePath, bytes.NewReader([]byte("hello")), 5); err != nil {
		t.Fatalf("fake Put: %v", err)
	}

	terr = p.Register(ctx, segpipeline.RegisterInput{
		FlowID: "flow-4", ObjectID: objectID, StoragePath: res[0].StoragePath, Timerange: "[0:0_1:0)", Size: 5,
	})
	if terr != nil {
		t.Fatalf("Register: %v", terr)
	}
}

// TestDecorateGetURLsFreshness exercises the GET-URL freshness property:
// every decorated segment carries a URL whose presign deadline falls
// within [now+ttl/2, now+ttl].
func TestDecorateGetURLsFreshness(t *testing.T) {
	p, _, flows := newPipeline(t)
	mustCreateFlow(t, flows, "flow-5", false)

	segs := []*core.Segment{{FlowID: "flow-5", ObjectID: "obj-1", Timerange: "[0:0_1:0)"}}
	if terr := p.DecorateGetURLs(context.Background(), segs); terr != nil {
		t.Fatalf("DecorateGetURLs: %v", terr)
	}
	if len(segs[0].GetURLs) != 1 {
		t.Fatalf("expected 1 get_url, got %d", len(segs[0].GetURLs))
	}
	var exp int64
	if _, err := fmt.Sscanf(segs[0].GetURLs[0].URL, "https://fake/obj-1?op=get&exp=%d", &exp); err != nil {
		t.Fatalf("could not parse expiry out of %q: %v", segs[0].GetURLs[0].URL, err)
	}
	now := time.Now().Unix()
	half := now + int64(time.Hour/time.Second)/2
	full := now + int64(time.Hour/time.Second)
	if exp < half || exp > full+5 {
		t.Fatalf("expiry %d not within [%d, %d]", exp, half, full)
	}
}
