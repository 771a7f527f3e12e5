package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/wardenhq/warden/internal/store"
)

// handleCreateIdentity implements POST /api/warden/identities.
func (d *Dependencies) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeStoreUnavailable(w)
		return
	}

	var req CreateIdentityRequest
	if err := readJSON(r, &req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name is required"})
		return
	}

	id, apiKey, err := d.Store.CreateIdentity(r.Context(), req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "identity creation failed"})
		return
	}
	writeJSON(w, http.StatusCreated, identityResponse(id, apiKey))
}

// handleListIdentities implements GET /api/warden/identities.
func (d *Dependencies) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeStoreUnavailable(w)
		return
	}

	ids, err := d.Store.ListIdentities(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "identity listing failed"})
		return
	}
	out := make([]*IdentityResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, identityResponse(id, ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"identities": out})
}

// handleDeleteIdentity implements DELETE /api/warden/identities/{identity}.
// The database row goes away along with its policy and tool rows; the
// in-memory session state is cleared too.
func (d *Dependencies) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeStoreUnavailable(w)
		return
	}

	identity := r.PathValue("identity")
	if err := d.Store.DeleteIdentity(r.Context(), identity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "identity not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "identity deletion failed"})
		return
	}
	d.Guard.ResetSession(identity)
	w.WriteHeader(http.StatusNoContent)
}

// handleRotateKey implements POST /api/warden/identities/{identity}/rotate-key.
// The old key stops working as soon as its cache entry expires.
func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeStoreUnavailable(w)
		return
	}

	identity := r.PathValue("identity")
	id, apiKey, err := d.Store.RotateAPIKey(r.Context(), identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "identity not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "key rotation failed"})
		return
	}
	writeJSON(w, http.StatusOK, identityResponse(id, apiKey))
}

func identityResponse(id *store.Identity, apiKey string) *IdentityResponse {
	return &IdentityResponse{
		ID:           id.ID,
		Name:         id.Name,
		APIKeyPrefix: id.APIKeyPrefix,
		APIKey:       apiKey,
		CreatedAt:    id.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    id.UpdatedAt.Format(time.RFC3339),
	}
}

func writeStoreUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "identity store not configured"})
}
