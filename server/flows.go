package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
)

type createFlowRequest struct {
	SourceID    string            `json:"source_id" validate:"required"`
	Format      string            `json:"format" validate:"required"`
	Codec       string            `json:"codec" validate:"required"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
	Container   string            `json:"container"`

	SegmentDuration *core.Rational `json:"segment_duration"`
	FrameWidth      *int64         `json:"frame_width"`
	FrameHeight     *int64         `json:"frame_height"`
	FrameRate       *core.Rational `json:"frame_rate"`
	SampleRate      *int64         `json:"sample_rate"`
	BitsPerSample   *int64         `json:"bits_per_sample"`
	Channels        *int64         `json:"channels"`
}

func (h *handlers) createFlow(w http.ResponseWriter, r *http.Request) {
	var req createFlowRequest
	if terr := readJSON(r, &req); terr != nil {
		writeErr(w, terr)
		return
	}
	if terr := cmn.ValidateStruct(req); terr != nil {
		writeErr(w, terr)
		return
	}
	if terr := cmn.ValidateFormatURN("format", req.Format); terr != nil {
		writeErr(w, terr)
		return
	}
	if terr := cmn.ValidateUUID("source_id", req.SourceID); terr != nil {
		writeErr(w, terr)
		return
	}
	if _, terr := h.d.Sources.Get(r.Context(), req.SourceID); terr != nil {
		writeErr(w, terr)
		return
	}

	now := time.Now()
	f := &core.Flow{
		ID:              uuid.NewString(),
		SourceID:        req.SourceID,
		Format:          req.Format,
		Codec:           req.Codec,
		Label:           req.Label,
		Description:     req.Description,
		Tags:            req.Tags,
		Container:       req.Container,
		SegmentDuration: req.SegmentDuration,
		FrameWidth:      req.FrameWidth,
		FrameHeight:     req.FrameHeight,
		FrameRate:       req.FrameRate,
		SampleRate:      req.SampleRate,
		BitsPerSample:   req.BitsPerSample,
		Channels:        req.Channels,
		Created:         now,
		MetadataUpdated: now,
		SegmentsUpdated: now,
	}
	if terr := f.ValidateVariantShape(); terr != nil {
		writeErr(w, terr)
		return
	}
	if terr := h.d.Flows.Create(r.Context(), f); terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *handlers) getFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "flowID")
	if terr := cmn.ValidateUUID("flowID", id); terr != nil {
		writeErr(w, terr)
		return
	}
	f, terr := h.d.Flows.Get(r.Context(), id)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handlers) deleteFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "flowID")
	cascade := r.URL.Query().Get("cascade") == "true"
	if terr := h.d.Engine.DeleteFlow(r.Context(), id, cascade); terr != nil {
		writeErr(w, terr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
