package repos_test

import (
	"context"
	"testing"
	"time"

	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/core/timerange"
	"github.com/bbc/tams-core/metastore/memstore"
	"github.com/bbc/tams-core/repos"
)

func newMS() *memstore.Store { return memstore.New() }

func TestSourceRepoCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	r := repos.NewSourceRepo(newMS())

	src := &core.Source{ID: "11111111-1111-1111-1111-111111111111", Format: core.FormatData, Label: "cam1", Created: time.Now(), MetadataUpdated: time.Now()}
	if terr := r.Create(ctx, src); terr != nil {
		t.Fatalf("Create: %v", terr)
	}

	got, terr := r.Get(ctx, src.ID)
	if terr != nil {
		t.Fatalf("Get: %v", terr)
	}
	if got.Label != "cam1" {
		t.Fatalf("got label %q, want cam1", got.Label)
	}

	if terr := r.Delete(ctx, src.ID); terr != nil {
		t.Fatalf("Delete: %v", terr)
	}
	if _, terr := r.Get(ctx, src.ID); terr == nil {
		t.Fatal("expected NotFound after delete")
	}
}

func TestFlowRepoVariantRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := repos.NewFlowRepo(newMS())

	w, h := int64(1920), int64(1080)
	f := &core.Flow{
		ID:         "22222222-2222-2222-2222-222222222222",
		SourceID:   "11111111-1111-1111-1111-111111111111",
		Format:     core.FormatVideo,
		Codec:      "video/h264",
		FrameWidth: &w, FrameHeight: &h,
		FrameRate: &core.Rational{Numerator: 25, Denominator: 1},
		Created:   time.Now(), MetadataUpdated: time.Now(), SegmentsUpdated: time.Now(),
	}
	if terr := r.Create(ctx, f); terr != nil {
		t.Fatalf("Create: %v", terr)
	}
	got, terr := r.Get(ctx, f.ID)
	if terr != nil {
		t.Fatalf("Get: %v", terr)
	}
	if got.FrameRate == nil || got.FrameRate.Numerator != 25 || got.FrameRate.Denominator != 1 {
		t.Fatalf("frame_rate did not round-trip: %+v", got.FrameRate)
	}
	if got.FrameWidth == nil || *got.FrameWidth != 1920 {
		t.Fatalf("frame_width did not round-trip: %+v", got.FrameWidth)
	}
	if !got.IsVideo() {
		t.Fatal("expected IsVideo() true")
	}
}

func TestObjectRepoReconcileSizeAndReferences(t *testing.T) {
	ctx := context.Background()
	r := repos.NewObjectRepo(newMS())

	obj := &core.Object{ID: "33333333-3333-3333-3333-333333333333", StorageBackendID: "backend-1"}
	if terr := r.Create(ctx, obj); terr != nil {
		t.Fatalf("Create: %v", terr)
	}
	if terr := r.ReconcileSize(ctx, obj.ID, 4096); terr != nil {
		t.Fatalf("ReconcileSize: %v", terr)
	}
	got, terr := r.Get(ctx, obj.ID)
	if terr != nil {
		t.Fatalf("Get: %v", terr)
	}
	if got.Size == nil || *got.Size != 4096 {
		t.Fatalf("expected size 4096, got %v", got.Size)
	}

	ref := core.FlowObjectReference{ObjectID: obj.ID, FlowID: "flow-1", Timerange: "[0:0_10:0)"}
	if terr := r.AddReference(ctx, ref); terr != nil {
		t.Fatalf("AddReference: %v", terr)
	}
	n, terr := r.ReferenceCount(ctx, obj.ID)
	if terr != nil {
		t.Fatalf("ReferenceCount: %v", terr)
	}
	if n != 1 {
		t.Fatalf("expected 1 reference, got %d", n)
	}

	if terr := r.RemoveReference(ctx, obj.ID, ref.FlowID, ref.Timerange); terr != nil {
		t.Fatalf("RemoveReference: %v", terr)
	}
	n, terr = r.ReferenceCount(ctx, obj.ID)
	if terr != nil {
		t.Fatalf("ReferenceCount after remove: %v", terr)
	}
	if n != 0 {
		t.Fatalf("expected 0 references after remove, got %d", n)
	}
}

// TestSegmentRepoListByFlowHonorsOverlap exercises the overlap-filtering
// property directly: a segment range wholly outside the query filter must
// never be returned, regardless of what predicate pushdown narrowed first.
func TestSegmentRepoListByFlowHonorsOverlap(t *testing.T) {
	ctx := context.Background()
	r := repos.NewSegmentRepo(newMS())

	const flowID = "flow-1"
	segs := []*core.Segment{
		{FlowID: flowID, ObjectID: "obj-1", Timerange: "[0:0_5:0)"},
		{FlowID: flowID, ObjectID: "obj-2", Timerange: "[5:0_10:0)"},
		{FlowID: flowID, ObjectID: "obj-3", Timerange: "[20:0_30:0)"},
	}
	for _, s := range segs {
		if terr := r.Create(ctx, s); terr != nil {
			t.Fatalf("Create %s: %v", s.ObjectID, terr)
		}
	}

	filter, terr := timerange.Parse("[3:0_8:0)")
	if terr != nil {
		t.Fatalf("Parse filter: %v", terr)
	}
	got, terr := r.ListByFlow(ctx, flowID, filter, 0)
	if terr != nil {
		t.Fatalf("ListByFlow: %v", terr)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping segments, got %d: %+v", len(got), got)
	}
	for _, s := range got {
		if s.ObjectID == "obj-3" {
			t.Fatal("obj-3's range [20:0_30:0) does not overlap [3:0_8:0) and must not be returned")
		}
	}
}

func TestFlowDeleteRequestIdempotency(t *testing.T) {
	ctx := context.Background()
	r := repos.NewFlowDeleteRequestRepo(newMS())

	req := &core.FlowDeleteRequest{
		ID: "44444444-4444-4444-4444-444444444444", FlowID: "flow-1", Timerange: "[0:0_10:0)",
		Status: core.DeleteStatusPending, Created: time.Now(), Updated: time.Now(),
	}
	if terr := r.Create(ctx, req); terr != nil {
		t.Fatalf("Create: %v", terr)
	}

	existing, terr := r.FindByFlowAndRange(ctx, "flow-1", "[0:0_10:0)")
	if terr != nil {
		t.Fatalf("FindByFlowAndRange: %v", terr)
	}
	if existing == nil || existing.ID != req.ID {
		t.Fatalf("expected to find the existing request, got %+v", existing)
	}

	none, terr := r.FindByFlowAndRange(ctx, "flow-1", "[99:0_100:0)")
	if terr != nil {
		t.Fatalf("FindByFlowAndRange (miss): %v", terr)
	}
	if none != nil {
		t.Fatalf("expected no match for a different timerange, got %+v", none)
	}
}

func TestFlowDeleteRequestClaimAndRevert(t *testing.T) {
	ctx := context.Background()
	r := repos.NewFlowDeleteRequestRepo(newMS())

	req := &core.FlowDeleteRequest{
		ID: "55555555-5555-5555-5555-555555555555", FlowID: "flow-2", Timerange: "[0:0_10:0)",
		Status: core.DeleteStatusPending, Created: time.Now(), Updated: time.Now(),
	}
	if terr := r.Create(ctx, req); terr != nil {
		t.Fatalf("Create: %v", terr)
	}

	claimed, terr := r.ClaimNextPending(ctx, "worker-a")
	if terr != nil {
		t.Fatalf("ClaimNextPending: %v", terr)
	}
	if claimed == nil || claimed.Status != core.DeleteStatusInProgress || claimed.ClaimedBy != "worker-a" {
		t.Fatalf("expected claimed in_progress by worker-a, got %+v", claimed)
	}

	// A second claim attempt must find nothing: the only pending row is
	// now in_progress.
	again, terr := r.ClaimNextPending(ctx, "worker-b")
	if terr != nil {
		t.Fatalf("ClaimNextPending (second): %v", terr)
	}
	if again != nil {
		t.Fatalf("expected no pending request left to claim, got %+v", again)
	}

	if terr := r.RevertToPending(ctx, "worker-a"); terr != nil {
		t.Fatalf("RevertToPending: %v", terr)
	}
	reverted, terr := r.Get(ctx, req.ID)
	if terr != nil {
		t.Fatalf("Get after revert: %v", terr)
	}
	if reverted.Status != core.DeleteStatusPending || reverted.ClaimedBy != "" {
		t.Fatalf("expected pending and unclaimed after revert, got %+v", reverted)
	}
}

func TestStorageBackendRepoSeedAndList(t *testing.T) {
	ctx := context.Background()
	r := repos.NewStorageBackendRepo(newMS())

	b := &core.StorageBackend{ID: "backend-1", Label: "default", Provider: "s3", Bucket: "tams", Created: time.Now()}
	if terr := r.Seed(ctx, b); terr != nil {
		t.Fatalf("Seed: %v", terr)
	}
	got, terr := r.Get(ctx, "backend-1")
	if terr != nil {
		t.Fatalf("Get: %v", terr)
	}
	if got.Bucket != "tams" {
		t.Fatalf("got bucket %q, want tams", got.Bucket)
	}
	list, terr := r.List(ctx)
	if terr != nil {
		t.Fatalf("List: %v", terr)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 backend, got %d", len(list))
	}
}

func TestCollectionRepoReverseMembership(t *testing.T) {
	ctx := context.Background()
	ms := newMS()
	sources := repos.NewSourceRepo(ms)
	cols := repos.NewCollectionRepo(ms)

	if terr := sources.AddCollectionMember(ctx, core.SourceCollectionMember{SourceID: "src-1", CollectionID: "col-1", Label: "primary"}); terr != nil {
		t.Fatalf("AddCollectionMember: %v", terr)
	}
	got, terr := cols.SourceCollectionsContaining(ctx, "src-1")
	if terr != nil {
		t.Fatalf("SourceCollectionsContaining: %v", terr)
	}
	if len(got) != 1 || got[0] != "col-1" {
		t.Fatalf("expected [col-1], got %v", got)
	}
}
