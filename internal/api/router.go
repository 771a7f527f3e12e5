package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/tools"
)

// Dependencies holds shared state injected into all HTTP handlers. The
// administration layer is a thin transport: every handler maps directly
// onto one core operation and embeds no policy logic of its own.
type Dependencies struct {
	Store    *store.Store // nil disables identity endpoints and auth
	Guard    *session.Guard
	Policies *policy.Store
	Limiter  *ratelimit.Limiter
	Registry *tools.Registry
	Reader   *storage.Reader // nil if ClickHouse unavailable
	Loop     session.AgentLoop
	Logger   *zap.Logger
	CacheTTL time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Guarded turn endpoint (auth required via Bearer wsk_ token)
	mux.HandleFunc("POST /v1/warden/turn", deps.authMiddleware(deps.handleTurn))

	// Diagnostics (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/warden/code/validate", deps.handleValidateCode)
	mux.HandleFunc("POST /api/warden/content/validate", deps.handleValidateContent)

	// Tool CRUD + invocation
	mux.HandleFunc("POST /api/warden/identities/{identity}/tools", deps.handleRegisterTool)
	mux.HandleFunc("GET /api/warden/identities/{identity}/tools", deps.handleListTools)
	mux.HandleFunc("PUT /api/warden/identities/{identity}/tools/{name}", deps.handleUpdateTool)
	mux.HandleFunc("DELETE /api/warden/identities/{identity}/tools/{name}", deps.handleDeleteTool)
	mux.HandleFunc("POST /api/warden/identities/{identity}/tools/{name}/invoke", deps.handleInvokeTool)

	// Policy read/replace
	mux.HandleFunc("GET /api/warden/identities/{identity}/policy", deps.handleGetPolicy)
	mux.HandleFunc("PUT /api/warden/identities/{identity}/policy", deps.handleReplacePolicy)

	// Rate-limit status + session reset
	mux.HandleFunc("GET /api/warden/identities/{identity}/ratelimit", deps.handleRateLimitStatus)
	mux.HandleFunc("POST /api/warden/identities/{identity}/reset", deps.handleResetSession)

	// Identity administration (requires Postgres)
	mux.HandleFunc("POST /api/warden/identities", deps.handleCreateIdentity)
	mux.HandleFunc("GET /api/warden/identities", deps.handleListIdentities)
	mux.HandleFunc("DELETE /api/warden/identities/{identity}", deps.handleDeleteIdentity)
	mux.HandleFunc("POST /api/warden/identities/{identity}/rotate-key", deps.handleRotateKey)

	// Turn events (requires ClickHouse)
	mux.HandleFunc("GET /api/warden/events", deps.handleListEvents)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
