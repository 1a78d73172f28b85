package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/core"
)

type createSourceRequest struct {
	Format      string            `json:"format" validate:"required"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
	CollectedBy []string          `json:"collected_by"`
}

func (h *handlers) createSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
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

	now := time.Now()
	s := &core.Source{
		ID:              uuid.NewString(),
		Format:          req.Format,
		Label:           req.Label,
		Description:     req.Description,
		Tags:            req.Tags,
		CollectedBy:     req.CollectedBy,
		Created:         now,
		MetadataUpdated: now,
	}
	if terr := h.d.Sources.Create(r.Context(), s); terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *handlers) getSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")
	if terr := cmn.ValidateUUID("sourceID", id); terr != nil {
		writeErr(w, terr)
		return
	}
	s, terr := h.d.Sources.Get(r.Context(), id)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) listSources(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	out, terr := h.d.Sources.List(r.Context(), limit)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) deleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")
	cascade := r.URL.Query().Get("cascade") == "true"
	if terr := h.d.Engine.DeleteSource(r.Context(), id, cascade); terr != nil {
		writeErr(w, terr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listFlowsBySource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")
	limit := parseLimit(r)
	out, terr := h.d.Flows.ListBySource(r.Context(), id, limit)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLimit(r *http.Request) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
