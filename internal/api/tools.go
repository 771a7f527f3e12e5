package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/codecheck"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/tools"
)

// handleRegisterTool implements POST /api/warden/identities/{identity}/tools.
func (d *Dependencies) handleRegisterTool(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var req ToolRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	def := &tools.Definition{
		Name:        req.Name,
		Description: req.Description,
		Parameters:  req.Parameters,
		Code:        req.Code,
	}
	if err := d.Registry.Register(identity, def); err != nil {
		writeToolError(w, err)
		return
	}

	d.persistTool(r.Context(), identity, def)
	writeJSON(w, http.StatusCreated, def)
}

// handleUpdateTool implements PUT /api/warden/identities/{identity}/tools/{name}.
func (d *Dependencies) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	name := r.PathValue("name")

	var req ToolRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name != "" && req.Name != name {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool name in body does not match path"})
		return
	}

	def := &tools.Definition{
		Name:        name,
		Description: req.Description,
		Parameters:  req.Parameters,
		Code:        req.Code,
	}
	if err := d.Registry.Update(identity, def); err != nil {
		writeToolError(w, err)
		return
	}

	d.persistTool(r.Context(), identity, def)
	writeJSON(w, http.StatusOK, def)
}

// handleDeleteTool implements DELETE /api/warden/identities/{identity}/tools/{name}.
func (d *Dependencies) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	name := r.PathValue("name")

	if err := d.Registry.Delete(identity, name); err != nil {
		writeToolError(w, err)
		return
	}

	if d.Store != nil {
		if err := d.Store.DeleteToolDefinition(r.Context(), identity, name); err != nil {
			d.Logger.Warn("tool delete not persisted",
				zap.String("identity", identity),
				zap.String("tool", name),
				zap.Error(err),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTools implements GET /api/warden/identities/{identity}/tools.
func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	defs := d.Registry.List(identity)
	writeJSON(w, http.StatusOK, map[string]any{"tools": defs})
}

// handleInvokeTool implements POST /api/warden/identities/{identity}/tools/{name}/invoke.
// Invocation goes through the guard so authorization applies.
func (d *Dependencies) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	name := r.PathValue("name")

	var req InvokeToolRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	adm, err := d.Guard.AdmitRequest(r.Context(), identity, "invoke "+name)
	if err != nil {
		writeGuardError(w, err)
		return
	}
	result, err := d.Guard.ExecuteTool(r.Context(), adm, name, req.Arguments)
	if err != nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvokeToolResponse{Result: result})
}

// persistTool writes a definition through to Postgres when configured.
// Persistence failures are logged, not surfaced: the in-memory registry
// is authoritative for the running process.
func (d *Dependencies) persistTool(ctx context.Context, identity string, def *tools.Definition) {
	if d.Store == nil {
		return
	}
	params, err := json.Marshal(def.Parameters)
	if err != nil {
		d.Logger.Warn("tool parameters not serializable", zap.Error(err))
		return
	}
	if _, err := d.Store.UpsertToolDefinition(ctx, &store.ToolRecord{
		IdentityID:  identity,
		Name:        def.Name,
		Description: def.Description,
		Parameters:  params,
		Code:        def.Code,
	}); err != nil {
		d.Logger.Warn("tool not persisted",
			zap.String("identity", identity),
			zap.String("tool", def.Name),
			zap.Error(err),
		)
	}
}

// writeToolError maps registry errors onto HTTP statuses.
func writeToolError(w http.ResponseWriter, err error) {
	var dupErr *tools.DuplicateNameError
	var nameErr *tools.InvalidNameError
	var notFound *tools.NotFoundError
	var codeErr *codecheck.InvalidCodeError

	switch {
	case errors.As(err, &dupErr):
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: err.Error()})
	case errors.As(err, &nameErr):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: err.Error()})
	case errors.As(err, &codeErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	}
}
