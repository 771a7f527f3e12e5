package api

import (
	"net/http"

	"github.com/wardenhq/warden/internal/codecheck"
	"github.com/wardenhq/warden/internal/content"
	"github.com/wardenhq/warden/internal/policy"
)

// handleValidateCode implements POST /api/warden/code/validate: run the
// static validator without registering anything.
func (d *Dependencies) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	var req ValidateCodeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "code is required"})
		return
	}

	res := codecheck.Validate(req.Code)
	writeJSON(w, http.StatusOK, ValidateCodeResponse{
		Valid:      res.Valid,
		Violations: res.Reasons(),
	})
}

// handleValidateContent implements POST /api/warden/content/validate:
// standalone content diagnostics against the identity's active policy.
func (d *Dependencies) handleValidateContent(w http.ResponseWriter, r *http.Request) {
	var req ValidateContentRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "text is required"})
		return
	}

	phase := policy.PhaseInput
	if req.Phase == "output" {
		phase = policy.PhaseOutput
	}

	engine := content.NewEngine(d.Policies.Get(req.Identity))
	res := engine.Validate(req.Text, phase)
	writeJSON(w, http.StatusOK, ValidateContentResponse{
		Valid:      res.Valid,
		Violations: res.Reasons(),
		Sanitized:  engine.Sanitize(req.Text),
	})
}
