package handlers

import "net/http"

// Healthz handles GET /healthz: process liveness only.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz: the server can reach its dependencies.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.respondJson(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
