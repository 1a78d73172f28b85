package refengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/core/timerange"
	"github.com/bbc/tams-core/metastore/memstore"
	"github.com/bbc/tams-core/refengine"
	"github.com/bbc/tams-core/repos"
)

type fixture struct {
	sources *repos.SourceRepo
	flows   *repos.FlowRepo
	objects *repos.ObjectRepo
	segs    *repos.SegmentRepo
	cols    *repos.CollectionRepo
	engine  *refengine.Engine
}

func newFixture() *fixture {
	ms := memstore.New()
	f := &fixture{
		sources: repos.NewSourceRepo(ms),
		flows:   repos.NewFlowRepo(ms),
		objects: repos.NewObjectRepo(ms),
		segs:    repos.NewSegmentRepo(ms),
		cols:    repos.NewCollectionRepo(ms),
	}
	f.engine = refengine.New(f.sources, f.flows, f.objects, f.segs, f.cols)
	return f
}

func mustCreateFlow(t *testing.T, f *fixture, id, sourceID string, readOnly bool) *core.Flow {
	t.Helper()
	fl := &core.Flow{ID: id, SourceID: sourceID, Format: core.FormatData, ReadOnly: readOnly, Created: time.Now(), MetadataUpdated: time.Now(), SegmentsUpdated: time.Now()}
	if terr := f.flows.Create(context.Background(), fl); terr != nil {
		t.Fatalf("create flow %s: %v", id, terr)
	}
	return fl
}

func mustCreateSegment(t *testing.T, f *fixture, flowID, objectID, tr string) {
	t.Helper()
	ctx := context.Background()
	if _, terr := f.objects.Get(ctx, objectID); terr != nil {
		if terr := f.objects.Create(ctx, &core.Object{ID: objectID}); terr != nil {
			t.Fatalf("create object %s: %v", objectID, terr)
		}
	}
	if terr := f.objects.AddReference(ctx, core.FlowObjectReference{ObjectID: objectID, FlowID: flowID, Timerange: tr}); terr != nil {
		t.Fatalf("add reference: %v", terr)
	}
	if terr := f.segs.Create(ctx, &core.Segment{FlowID: flowID, ObjectID: objectID, Timerange: tr}); terr != nil {
		t.Fatalf("create segment: %v", terr)
	}
}

// TestDeleteSourceBlocksWithoutCascade exercises the Source-cascade
// property: a Source with a dependent Flow refuses a non-cascading delete
// and leaves the store unchanged.
func TestDeleteSourceBlocksWithoutCascade(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	src := &core.Source{ID: "src-1", Format: core.FormatData, Created: time.Now(), MetadataUpdated: time.Now()}
	if terr := f.sources.Create(ctx, src); terr != nil {
		t.Fatalf("create source: %v", terr)
	}
	mustCreateFlow(t, f, "flow-1", "src-1", false)

	if terr := f.engine.DeleteSource(ctx, "src-1", false); terr == nil {
		t.Fatal("expected Conflict blocking delete of a source with dependent flows")
	}
	if _, terr := f.sources.Get(ctx, "src-1"); terr != nil {
		t.Fatalf("source must still exist after a blocked delete: %v", terr)
	}
}

// TestDeleteSourceCascadeRemovesFlowsButKeepsObjects exercises cascading
// Source delete: every dependent Flow and its Segments are gone, but the
// underlying Object rows survive.
func TestDeleteSourceCascadeRemovesFlowsButKeepsObjects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	src := &core.Source{ID: "src-2", Format: core.FormatData, Created: time.Now(), MetadataUpdated: time.Now()}
	if terr := f.sources.Create(ctx, src); terr != nil {
		t.Fatalf("create source: %v", terr)
	}
	mustCreateFlow(t, f, "flow-2", "src-2", false)
	mustCreateSegment(t, f, "flow-2", "obj-2", "[0:0_10:0)")

	if terr := f.engine.DeleteSource(ctx, "src-2", true); terr != nil {
		t.Fatalf("DeleteSource cascade: %v", terr)
	}
	if _, terr := f.sources.Get(ctx, "src-2"); terr == nil {
		t.Fatal("source should be gone after cascading delete")
	}
	if _, terr := f.flows.Get(ctx, "flow-2"); terr == nil {
		t.Fatal("flow should be gone after cascading source delete")
	}
	// Object rows are never touched by a cascade, only their references.
	if _, terr := f.objects.Get(ctx, "obj-2"); terr != nil {
		t.Fatalf("object row must survive a source cascade, got: %v", terr)
	}
}

// TestDeleteFlowReadOnlyForbidden exercises the read-only property: any
// delete on a read-only Flow is refused and the flow remains.
func TestDeleteFlowReadOnlyForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mustCreateFlow(t, f, "flow-ro", "src-x", true)

	if terr := f.engine.DeleteFlow(ctx, "flow-ro", true); terr == nil {
		t.Fatal("expected Forbidden deleting a read-only flow")
	} else if terr.HTTPStatus() != 403 {
		t.Fatalf("expected HTTP 403, got %d", terr.HTTPStatus())
	}
	if _, terr := f.flows.Get(ctx, "flow-ro"); terr != nil {
		t.Fatalf("flow must still exist: %v", terr)
	}
}

// TestDeleteFlowBlocksWithoutCascade mirrors the Source-cascade property
// one level down: Flow vs. Segment.
func TestDeleteFlowBlocksWithoutCascade(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mustCreateFlow(t, f, "flow-3", "src-3", false)
	mustCreateSegment(t, f, "flow-3", "obj-3", "[0:0_10:0)")

	if terr := f.engine.DeleteFlow(ctx, "flow-3", false); terr == nil {
		t.Fatal("expected Conflict blocking delete of a flow with segments")
	}
	if _, terr := f.flows.Get(ctx, "flow-3"); terr != nil {
		t.Fatalf("flow must still exist after a blocked delete: %v", terr)
	}
}

// TestDeleteObjectStillReferencedConflicts exercises the Object-immutability
// property: an Object with a live reference can never be deleted directly.
func TestDeleteObjectStillReferencedConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mustCreateFlow(t, f, "flow-4", "src-4", false)
	mustCreateSegment(t, f, "flow-4", "obj-4", "[0:0_10:0)")

	if terr := f.engine.DeleteObject(ctx, "obj-4"); terr == nil {
		t.Fatal("expected Conflict deleting a still-referenced object")
	}
	if _, terr := f.objects.Get(ctx, "obj-4"); terr != nil {
		t.Fatalf("object must still exist: %v", terr)
	}
}

// TestDeleteSegmentsKeepsObjectThenAllowsExplicitDelete exercises the full
// chain: DeleteSegments never touches the Object row itself, only the
// segment dropping its last reference makes the object eligible for a
// subsequent, explicit DeleteObject.
func TestDeleteSegmentsKeepsObjectThenAllowsExplicitDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mustCreateFlow(t, f, "flow-5", "src-5", false)
	mustCreateSegment(t, f, "flow-5", "obj-5", "[0:0_10:0)")

	full, terr := timerange.Parse("-_-")
	if terr != nil {
		t.Fatalf("parse unbounded range: %v", terr)
	}
	deleted, kept, terr := f.engine.DeleteSegments(ctx, "flow-5", full)
	if terr != nil {
		t.Fatalf("DeleteSegments: %v", terr)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 segment deleted, got %d", deleted)
	}
	if kept != 1 {
		t.Fatalf("expected 1 object kept, got %d", kept)
	}
	if _, terr := f.objects.Get(ctx, "obj-5"); terr != nil {
		t.Fatalf("object row must survive DeleteSegments, got: %v", terr)
	}
	if terr := f.engine.DeleteObject(ctx, "obj-5"); terr != nil {
		t.Fatalf("orphaned object should now be deletable: %v", terr)
	}
}

// TestDeleteSegmentsReadOnlyForbidden exercises the read-only property on
// the direct (non-cascade-via-flow-delete) segment-delete path, since the
// synchronous HTTP handler calls DeleteSegments directly.
func TestDeleteSegmentsReadOnlyForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mustCreateFlow(t, f, "flow-6", "src-6", true)
	full, terr := timerange.Parse("-_-")
	if terr != nil {
		t.Fatalf("parse unbounded range: %v", terr)
	}
	if _, _, terr := f.engine.DeleteSegments(ctx, "flow-6", full); terr == nil {
		t.Fatal("expected Forbidden deleting segments of a read-only flow")
	}
}
