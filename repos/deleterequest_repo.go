package repos

import (
	"context"
	"time"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore"
)

// FlowDeleteRequestRepo owns the flow_delete_requests table driving the
// async bulk-deletion worker's state machine.
type FlowDeleteRequestRepo struct{ store }

func NewFlowDeleteRequestRepo(ms metastore.Store) *FlowDeleteRequestRepo {
	return &FlowDeleteRequestRepo{newStore(ms)}
}

func (r *FlowDeleteRequestRepo) Create(ctx context.Context, req *core.FlowDeleteRequest) *cmn.TError {
	return wrapStorageErr("deleterequest.create", r.ms.Insert(ctx, "flow_delete_requests", deleteReqToRow(req)))
}

func (r *FlowDeleteRequestRepo) Get(ctx context.Context, id string) (*core.FlowDeleteRequest, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flow_delete_requests",
		Where: []metastore.Predicate{{Column: "id", Op: "=", Value: id}},
		Limit: 1,
	})
	if err != nil {
		return nil, wrapStorageErr("deleterequest.get", err)
	}
	if len(rows) == 0 {
		return nil, cmn.NewNotFound("flow_delete_request", id)
	}
	return rowToDeleteReq(rows[0]), nil
}

// FindByFlowAndRange supports the idempotency rule: re-submitting the same
// (flow_id, timerange) pair must return the existing request rather than
// enqueuing a duplicate.
func (r *FlowDeleteRequestRepo) FindByFlowAndRange(ctx context.Context, flowID, tr string) (*core.FlowDeleteRequest, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flow_delete_requests",
		Where: []metastore.Predicate{
			{Column: "flow_id", Op: "=", Value: flowID},
			{Column: "timerange", Op: "=", Value: tr},
		},
		OrderBy:    "created",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, wrapStorageErr("deleterequest.find_by_flow_and_range", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToDeleteReq(rows[0]), nil
}

// ClaimNextPending claims the oldest pending request for workerID by
// re-reading the row and only writing the in_progress transition if it is
// still pending at read time. It returns nil when nothing is pending or the
// re-read row is no longer pending. The read and the write are separate
// operations, not a compare-and-swap (ReplacingMergeTree offers no native
// CAS), so two concurrent callers can both claim the same row; the claim is
// exclusive only with a single deleteworker replica.
func (r *FlowDeleteRequestRepo) ClaimNextPending(ctx context.Context, workerID string) (*core.FlowDeleteRequest, *cmn.TError) {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table:   "flow_delete_requests",
		Where:   []metastore.Predicate{{Column: "status", Op: "=", Value: string(core.DeleteStatusPending)}},
		OrderBy: "created",
		Limit:   1,
	})
	if err != nil {
		return nil, wrapStorageErr("deleterequest.claim", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	req := rowToDeleteReq(rows[0])
	fresh, terr := r.Get(ctx, req.ID)
	if terr != nil {
		return nil, terr
	}
	if fresh.Status != core.DeleteStatusPending {
		return nil, nil
	}
	now := time.Now()
	fresh.Status = core.DeleteStatusInProgress
	fresh.ClaimedBy = workerID
	fresh.ClaimedAt = &now
	fresh.Updated = now
	if terr := r.Update(ctx, fresh); terr != nil {
		return nil, terr
	}
	return fresh, nil
}

func (r *FlowDeleteRequestRepo) Update(ctx context.Context, req *core.FlowDeleteRequest) *cmn.TError {
	return wrapStorageErr("deleterequest.update", r.ms.Insert(ctx, "flow_delete_requests", deleteReqToRow(req)))
}

// RevertToPending is used on worker shutdown: in-progress requests claimed
// by this worker go back to pending so another worker instance can resume
// them instead of leaving them stuck.
func (r *FlowDeleteRequestRepo) RevertToPending(ctx context.Context, workerID string) *cmn.TError {
	rows, err := r.ms.Query(ctx, metastore.QuerySpec{
		Table: "flow_delete_requests",
		Where: []metastore.Predicate{
			{Column: "status", Op: "=", Value: string(core.DeleteStatusInProgress)},
			{Column: "claimed_by", Op: "=", Value: workerID},
		},
	})
	if err != nil {
		return wrapStorageErr("deleterequest.revert_to_pending", err)
	}
	for _, row := range rows {
		req := rowToDeleteReq(row)
		req.Status = core.DeleteStatusPending
		req.ClaimedBy = ""
		req.ClaimedAt = nil
		req.Updated = time.Now()
		if terr := r.Update(ctx, req); terr != nil {
			return terr
		}
	}
	return nil
}

func deleteReqToRow(req *core.FlowDeleteRequest) metastore.Row {
	row := metastore.Row{
		"id":               req.ID,
		"flow_id":          req.FlowID,
		"timerange":        req.Timerange,
		"status":           string(req.Status),
		"created":          toRFC3339(req.Created),
		"updated":          toRFC3339(req.Updated),
		"segments_deleted": req.SegmentsDeleted,
		"error":            req.Error,
		"claimed_by":       req.ClaimedBy,
		"ver":              verStamp(),
	}
	if req.ClaimedAt != nil {
		row["claimed_at"] = toRFC3339(*req.ClaimedAt)
	} else {
		row["claimed_at"] = nil
	}
	return row
}

func rowToDeleteReq(row metastore.Row) *core.FlowDeleteRequest {
	req := &core.FlowDeleteRequest{
		ID:              asString(row["id"]),
		FlowID:          asString(row["flow_id"]),
		Timerange:       asString(row["timerange"]),
		Status:          core.DeleteRequestStatus(asString(row["status"])),
		Created:         parseRFC3339(row["created"]),
		Updated:         parseRFC3339(row["updated"]),
		SegmentsDeleted: asInt64(row["segments_deleted"]),
		Error:           asString(row["error"]),
		ClaimedBy:       asString(row["claimed_by"]),
	}
	if row["claimed_at"] != nil && asString(row["claimed_at"]) != "" {
		t := parseRFC3339(row["claimed_at"])
		req.ClaimedAt = &t
	}
	return req
}
