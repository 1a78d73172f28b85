package repos

import (
	"context"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/core/timerange"
	"github.com/bbc/tams-core/metastore"
)

// SegmentRepo owns the segments table, ordered by (flow_id, timerange lo)
// so range scans for a flow's segment listing are a contiguous read.
type SegmentRepo struct{ store }

func NewSegmentRepo(ms metastore.Store) *SegmentRepo { return &SegmentRepo{newStore(ms)} }

func (r *SegmentRepo) Create(ctx context.Context, s *core.Segment) *cmn.TError {
	row, terr := segmentToRow(s)
	if terr != nil {
		return terr
	}
	return wrapStorageErr("segment.create", r.ms.Insert(ctx, "segments", row))
}

// ListByFlow returns every segment of flowID whose timerange overlaps tr,
// ordered by lo. Only the flow_id and deleted predicates are pushed down;
// the overlap test against tr is done in process on every row of the flow,
// since the bracket/inclusivity semantics don't translate to a single SQL
// comparison.
func (r *SegmentRepo) ListByFlow(ctx context.Context, flowID string, tr timerange.Range, limit int) ([]*core.Segment, *cmn.TError) {
	where := []metastore.Predicate{
		{Column: "flow_id", Op: "=", Value: flowID},
		{Column: "deleted", Op: "=", Value: uint8(0)},
	}
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table:   "segments",
		Where:   where,
		OrderBy: "timerange_lo_sec, timerange_lo_nsec",
		Limit:   limit,
	})
	if err != nil {
		return nil, wrapStorageErr("segment.list_by_flow", err)
	}
	out := make([]*core.Segment, 0, len(rows))
	for _, row := range rows {
		s, terr := rowToSegment(row)
		if terr != nil {
			continue
		}
		segRange, perr := timerange.Parse(s.Timerange)
		if perr != nil {
			continue
		}
		if timerange.Overlap(segRange, tr) {
			out = append(out, s)
		}
	}
	return out, nil
}

// CountByFlow returns how many of flowID's segments overlap tr. It loads
// the matching rows through ListByFlow and counts them. Used to decide whether a delete should run
// synchronously or get promoted to an async flow-delete-request.
func (r *SegmentRepo) CountByFlow(ctx context.Context, flowID string, tr timerange.Range) (int, *cmn.TError) {
	segs, terr := r.ListByFlow(ctx, flowID, tr, 0)
	if terr != nil {
		return 0, terr
	}
	return len(segs), nil
}

func (r *SegmentRepo) DeleteRange(ctx context.Context, flowID string, tr timerange.Range) (int64, *cmn.TError) {
	segs, terr := r.ListByFlow(ctx, flowID, tr, 0)
	if terr != nil {
		return 0, terr
	}
	var n int64
	for _, s := range segs {
		if err := r.ms.Delete(ctx, "segments", []metastore.Predicate{
			{Column: "flow_id", Op: "=", Value: s.FlowID},
			{Column: "timerange", Op: "=", Value: s.Timerange},
		}); err != nil {
			return n, wrapStorageErr("segment.delete_range", err)
		}
		n++
	}
	return n, nil
}

func segmentToRow(s *core.Segment) (metastore.Row, *cmn.TError) {
	tr, terr := timerange.Parse(s.Timerange)
	if terr != nil {
		return nil, terr
	}
	return metastore.Row{
		"flow_id":           s.FlowID,
		"object_id":         s.ObjectID,
		"timerange":         s.Timerange,
		"timerange_lo_sec":  tr.Lo.Sec,
		"timerange_lo_nsec": tr.Lo.Nsec,
		"ts_offset":         s.TsOffset,
		"last_duration":     s.LastDuration,
		"sample_offset":     s.SampleOffset,
		"sample_count":      s.SampleCount,
		"key_frame_count":   s.KeyFrameCount,
		"storage_path":      s.StoragePath,
		"ver":               verStamp(),
		"deleted":           uint8(0),
	}, nil
}

func rowToSegment(row metastore.Row) (*core.Segment, *cmn.TError) {
	return &core.Segment{
		FlowID:        asString(row["flow_id"]),
		ObjectID:      asString(row["object_id"]),
		Timerange:     asString(row["timerange"]),
		TsOffset:      asString(row["ts_offset"]),
		LastDuration:  asString(row["last_duration"]),
		SampleOffset:  asNullableInt64(row["sample_offset"]),
		SampleCount:   asNullableInt64(row["sample_count"]),
		KeyFrameCount: asNullableInt64(row["key_frame_count"]),
		StoragePath:   asString(row["storage_path"]),
	}, nil
}
