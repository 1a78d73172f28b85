package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) getObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "objectID")
	o, terr := h.d.Objects.Get(r.Context(), id)
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) deleteObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "objectID")
	if terr := h.d.Engine.DeleteObject(r.Context(), id); terr != nil {
		writeErr(w, terr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
