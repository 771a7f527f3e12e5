package api

import (
	"net/http"
)

// handleRateLimitStatus implements GET /api/warden/identities/{identity}/ratelimit.
// Reading status never consumes a request.
func (d *Dependencies) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	writeJSON(w, http.StatusOK, d.Guard.RateLimitStatus(identity))
}

// handleResetSession implements POST /api/warden/identities/{identity}/reset.
// Clears rate-limit windows, the policy override, and registered tools.
func (d *Dependencies) handleResetSession(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	d.Guard.ResetSession(identity)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
