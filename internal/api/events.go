package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// handleListEvents implements GET /api/warden/events. Supports
// ?identity= and ?limit= query parameters.
func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "event store not configured"})
		return
	}

	identity := r.URL.Query().Get("identity")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be an integer"})
			return
		}
		limit = n
	}

	events, err := d.Reader.ListEvents(r.Context(), identity, limit)
	if err != nil {
		d.Logger.Error("event listing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "event listing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
