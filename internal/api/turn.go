package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/session"
)

// handleTurn implements POST /v1/warden/turn: one full guarded turn.
// Admission (rate limit + input policy), then the agent loop with a
// guarded tool runner, then output finalization. The response carries
// the sanitized or refused text plus all recorded violations.
func (d *Dependencies) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id == nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Unauthorized"})
		return
	}

	var req TurnRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	start := time.Now()

	adm, err := d.Guard.AdmitRequest(r.Context(), id.ID, req.Input)
	if err != nil {
		writeGuardError(w, err)
		return
	}

	loop := d.Loop
	if loop == nil {
		loop = session.EchoLoop
	}
	run := func(ctx context.Context, toolName string, args map[string]any) (string, error) {
		return d.Guard.ExecuteTool(ctx, adm, toolName, args)
	}

	raw, err := loop(r.Context(), req.Input, run)
	if err != nil {
		// A blocked tool fails the whole turn closed.
		var blocked *session.ToolBlockedError
		if errors.As(err, &blocked) {
			writeGuardError(w, err)
			return
		}
		d.Logger.Error("agent loop failed",
			zap.String("identity", id.ID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "turn failed"})
		return
	}

	result := d.Guard.FinalizeResponse(adm, raw)

	writeJSON(w, http.StatusOK, TurnResponse{
		RequestID:  adm.ID,
		Text:       result.Text,
		Refused:    result.Refused,
		Violations: result.Violations,
		LatencyMs:  float64(time.Since(start)) / float64(time.Millisecond),
	})
}

// writeGuardError maps guard errors onto HTTP statuses: 429 for rate
// limits (with Retry-After), 422 for content policy, 403 for blocked
// tools.
func writeGuardError(w http.ResponseWriter, err error) {
	var rateErr *session.RateLimitError
	var policyErr *session.PolicyViolationError
	var blockedErr *session.ToolBlockedError

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", rateErr.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, ErrorResp{Detail: err.Error()})
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
	case errors.As(err, &blockedErr):
		writeJSON(w, http.StatusForbidden, ErrorResp{Detail: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: err.Error()})
	}
}
