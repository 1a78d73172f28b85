// Package refengine enforces the reference-integrity rules of the
// Source -> Flow -> Segment -> Object graph: a delete either cascades
// through dependents or is blocked with a Conflict naming the first few
// entities still holding a reference.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package refengine

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core/timerange"
	"github.com/bbc/tams-core/repos"
)

// maxDependentsListed caps how many blocking ids a Conflict error names, to
// keep the error body bounded when a Source has thousands of flows.
const maxDependentsListed = 10

// Engine wires the repos a cascade/block decision needs. No objstore
// dependency: every delete here touches metadata rows only, and object-store
// bytes are left in place.
type Engine struct {
	Sources *repos.SourceRepo
	Flows   *repos.FlowRepo
	Objects *repos.ObjectRepo
	Segs    *repos.SegmentRepo
	Cols    *repos.CollectionRepo
}

func New(sources *repos.SourceRepo, flows *repos.FlowRepo, objects *repos.ObjectRepo, segs *repos.SegmentRepo, cols *repos.CollectionRepo) *Engine {
	return &Engine{Sources: sources, Flows: flows, Objects: objects, Segs: segs, Cols: cols}
}

// DeleteSource removes a Source. With cascade=false, any Flow still
// pointing at sourceID blocks the delete. With cascade=true, every such
// Flow is deleted first (each itself cascading to its segments; the
// Object rows those segments referenced are kept).
func (e *Engine) DeleteSource(ctx context.Context, sourceID string, cascade bool) *cmn.TError {
	flows, terr := e.Flows.ListBySource(ctx, sourceID, 0)
	if terr != nil {
		return terr
	}
	if len(flows) > 0 && !cascade {
		ids := make([]string, 0, maxDependentsListed)
		for i, f := range flows {
			if i >= maxDependentsListed {
				break
			}
			ids = append(ids, f.ID)
		}
		return cmn.NewConflict("source has dependent flows", ids...)
	}
	for _, f := range flows {
		if terr := e.DeleteFlow(ctx, f.ID, true); terr != nil {
			return terr
		}
	}
	return e.Sources.Delete(ctx, sourceID)
}

// DeleteFlow removes a Flow. With cascade=true, every segment of the flow
// is deleted (dereferencing their objects); with cascade=false, a flow
// carrying any segment blocks the delete.
func (e *Engine) DeleteFlow(ctx context.Context, flowID string, cascade bool) *cmn.TError {
	flow, terr := e.Flows.Get(ctx, flowID)
	if terr != nil {
		return terr
	}
	if flow.ReadOnly {
		return cmn.NewForbidden("flow is read-only")
	}

	full, terr := timerange.Parse("-_-")
	if terr != nil {
		return terr
	}
	segs, terr := e.Segs.ListByFlow(ctx, flowID, full, 0)
	if terr != nil {
		return terr
	}
	if len(segs) > 0 && !cascade {
		return cmn.NewConflict("flow has segments; delete with cascade or delete segments first")
	}
	if _, _, terr := e.DeleteSegments(ctx, flowID, full); terr != nil {
		return terr
	}
	return e.Flows.Delete(ctx, flowID)
}

// DeleteSegments removes every segment of flowID overlapping tr, releasing
// each segment's object reference. It never touches the Object row or its
// object-store bytes, even once an object's last reference is gone: object
// deletion only ever happens through the explicit DeleteObject path.
// Returns the count of segments deleted and the count of objects those
// segments referenced that were left in place (kept) as a result.
func (e *Engine) DeleteSegments(ctx context.Context, flowID string, tr timerange.Range) (deletedSegments, keptObjects int64, _ *cmn.TError) {
	flow, terr := e.Flows.Get(ctx, flowID)
	if terr != nil {
		return 0, 0, terr
	}
	if flow.ReadOnly {
		return 0, 0, cmn.NewForbidden("flow is read-only")
	}

	segs, terr := e.Segs.ListByFlow(ctx, flowID, tr, 0)
	if terr != nil {
		return 0, 0, terr
	}
	kept := make(map[string]bool, len(segs))
	for _, s := range segs {
		if terr := e.Objects.RemoveReference(ctx, s.ObjectID, s.FlowID, s.Timerange); terr != nil {
			return deletedSegments, keptObjects, terr
		}
		deletedSegments++
		if !kept[s.ObjectID] {
			kept[s.ObjectID] = true
			keptObjects++
		}
	}
	if _, terr := e.Segs.DeleteRange(ctx, flowID, tr); terr != nil {
		return deletedSegments, keptObjects, terr
	}
	return deletedSegments, keptObjects, nil
}

// DeleteObject is the only path that removes an Object row: it fails with
// Conflict if anything still references objectID. The object's bytes in
// the object store are not deleted.
func (e *Engine) DeleteObject(ctx context.Context, objectID string) *cmn.TError {
	n, terr := e.Objects.ReferenceCount(ctx, objectID)
	if terr != nil {
		return terr
	}
	if n > 0 {
		return cmn.NewConflict("object is still referenced by one or more flow segments")
	}
	return e.Objects.Delete(ctx, objectID)
}
