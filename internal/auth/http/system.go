package http

import (
	"net/http"
	"time"

	"github.com/cataloghq/authcore/pkg/httpx"
)

// handleLivez always answers ok while the process is up.
func (r *Router) handleLivez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(r.startTime).String(),
	})
}

// handleReadyz answers ok only when the store is reachable.
func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Ping(req.Context()); err != nil {
		r.logger.Error("readiness probe failed", "err", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
