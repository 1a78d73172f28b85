package server

import "net/http"

func (h *handlers) listStorageBackends(w http.ResponseWriter, r *http.Request) {
	out, terr := h.d.Backends.List(r.Context())
	if terr != nil {
		writeErr(w, terr)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
