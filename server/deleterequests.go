package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/core/timerange"
)

func (h *handlers) createDeleteRequest(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	trStr := r.URL.Query().Get("timerange")
	if _, terr := timerange.Parse(trStr); terr != nil {
		writeErr(w, terr)
		return
	}

	req, created, terr := h.findOrCreateDeleteRequest(r.Context(), flowID, trStr)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	if created {
		writeJSON(w, http.StatusAccepted, req)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// findOrCreateDeleteRequest implements the idempotency rule shared by the
// explicit delete-requests endpoint and deleteSegments's async promotion:
// re-submitting the same (flow_id, timerange) returns the existing row.
func (h *handlers) findOrCreateDeleteRequest(ctx context.Context, flowID, trStr string) (*core.FlowDeleteRequest, bool, *cmn.TError) {
	if existing, terr := h.d.Requests.FindByFlowAndRange(ctx, flowID, trStr); terr != nil {
		return nil, false, terr
	} else if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	req := &core.FlowDeleteRequest{
		ID:        uuid.NewString(),
		FlowID:    flowID,
		Timerange: trStr,
		Status:    core.DeleteStatusPending,
		Created:   now,
		Updated:   now,
	}
	if terr := h.d.Requests.Create(ctx, req); terr != nil {
		return nil, false, terr
	}
	return req, true, nil
}

func (h *handlers) getDeleteRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	if terr := cmn.ValidateUUID("requestID", id); terr != nil {
		writeErr(w, terr)
		return
	}
	req, terr := h.d.Requests.Get(r.Context(), id)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
