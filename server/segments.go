package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/core/timerange"
	"github.com/bbc/tams-core/segpipeline"
)

func (h *handlers) listSegments(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	trStr := r.URL.Query().Get("timerange")
	if trStr == "" {
		trStr = "-_-"
	}
	tr, terr := timerange.Parse(trStr)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	segs, terr := h.d.Segments.ListByFlow(r.Context(), flowID, tr, parseLimit(r))
	if terr != nil {
		writeErr(w, terr)
		return
	}
	if terr := h.decorateGetURLsByBackend(r.Context(), segs); terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, segs)
}

// decorateGetURLsByBackend groups segs by the StorageBackend their Object
// actually lives on and decorates each group through that backend's own
// Pipeline, since a multi-backend deployment can't presign every segment
// through a single hardcoded pipeline.
func (h *handlers) decorateGetURLsByBackend(ctx context.Context, segs []*core.Segment) *cmn.TError {
	byBackend := map[string][]*core.Segment{}
	for _, s := range segs {
		obj, terr := h.d.Objects.Get(ctx, s.ObjectID)
		if terr != nil {
			continue
		}
		byBackend[obj.StorageBackendID] = append(byBackend[obj.StorageBackendID], s)
	}
	for backendID, group := range byBackend {
		p, terr := h.d.pipelineFor(ctx, backendID)
		if terr != nil {
			continue
		}
		if terr := p.DecorateGetURLs(ctx, group); terr != nil {
			return terr
		}
	}
	return nil
}

type allocateSegmentRequest struct {
	ObjectIDs []string `json:"object_ids"`
	Limit     int      `json:"limit"`
	StorageID string   `json:"storage_id"`
}

func (h *handlers) allocateSegment(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	var req allocateSegmentRequest
	if r.ContentLength != 0 {
		if terr := readJSON(r, &req); terr != nil {
			writeErr(w, terr)
			return
		}
	}
	p, terr := h.d.pipelineFor(r.Context(), req.StorageID)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	res, terr := p.Allocate(r.Context(), flowID, req.ObjectIDs, req.Limit)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"media_objects": res})
}

type registerSegmentRequest struct {
	ObjectID      string `json:"object_id" validate:"required"`
	StoragePath   string `json:"storage_path"`
	StorageID     string `json:"storage_id"`
	Timerange     string `json:"timerange" validate:"required"`
	TsOffset      string `json:"ts_offset"`
	LastDuration  string `json:"last_duration"`
	SampleOffset  *int64 `json:"sample_offset"`
	SampleCount   *int64 `json:"sample_count"`
	KeyFrameCount *int64 `json:"key_frame_count"`
	Size          int64  `json:"size" validate:"required"`
}

func (h *handlers) registerSegment(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	var req registerSegmentRequest
	if terr := readJSON(r, &req); terr != nil {
		writeErr(w, terr)
		return
	}
	if terr := cmn.ValidateStruct(req); terr != nil {
		writeErr(w, terr)
		return
	}
	if _, terr := timerange.Parse(req.Timerange); terr != nil {
		writeErr(w, terr)
		return
	}
	p, terr := h.d.pipelineFor(r.Context(), req.StorageID)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	terr = p.Register(r.Context(), segpipeline.RegisterInput{
		FlowID:        flowID,
		ObjectID:      req.ObjectID,
		StoragePath:   req.StoragePath,
		Timerange:     req.Timerange,
		TsOffset:      req.TsOffset,
		LastDuration:  req.LastDuration,
		SampleOffset:  req.SampleOffset,
		SampleCount:   req.SampleCount,
		KeyFrameCount: req.KeyFrameCount,
		Size:          req.Size,
	})
	if terr != nil {
		writeErr(w, terr)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// deleteSegments deletes inline when the matching segment count is at or
// below asyncDeleteThreshold; once a delete would touch more rows than that, it
// is promoted to the same async flow-delete-request path createDeleteRequest
// uses, so one slow delete can't tie up the request goroutine.
func (h *handlers) deleteSegments(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	trStr := r.URL.Query().Get("timerange")
	tr, terr := timerange.Parse(trStr)
	if terr != nil {
		writeErr(w, terr)
		return
	}

	count, terr := h.d.Segments.CountByFlow(r.Context(), flowID, tr)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	if count > h.d.asyncDeleteThreshold() {
		h.promoteDeleteToAsync(w, r, flowID, trStr)
		return
	}

	deleted, kept, terr := h.d.Engine.DeleteSegments(r.Context(), flowID, tr)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"segments_deleted": deleted, "kept_objects": kept})
}

func (h *handlers) promoteDeleteToAsync(w http.ResponseWriter, r *http.Request, flowID, trStr string) {
	req, _, terr := h.findOrCreateDeleteRequest(r.Context(), flowID, trStr)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}
