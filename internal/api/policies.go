package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/policy"
)

// handleGetPolicy implements GET /api/warden/identities/{identity}/policy.
func (d *Dependencies) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	cfg := d.Policies.Get(identity)
	writeJSON(w, http.StatusOK, configBody(cfg))
}

// handleReplacePolicy implements PUT /api/warden/identities/{identity}/policy.
// The configuration is replaced as a whole value; there is no field-level
// patching.
func (d *Dependencies) handleReplacePolicy(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var body PolicyConfigBody
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if body.MaxRequestsPerMinute < 0 || body.MaxRequestsPerHour < 0 || body.MaxResponseLength < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limits must be non-negative"})
		return
	}

	cfg := configFromBody(&body)
	d.Policies.Replace(identity, cfg)

	if d.Store != nil {
		raw, err := json.Marshal(body)
		if err == nil {
			_, err = d.Store.ReplacePolicy(r.Context(), identity, raw)
		}
		if err != nil {
			d.Logger.Warn("policy not persisted",
				zap.String("identity", identity),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusOK, configBody(cfg))
}

func configBody(cfg *policy.Configuration) *PolicyConfigBody {
	return &PolicyConfigBody{
		BlockHarmfulContent:  cfg.BlockHarmfulContent,
		BlockSensitiveTopics: cfg.BlockSensitiveTopics,
		BlockPII:             cfg.BlockPII,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		MaxRequestsPerHour:   cfg.MaxRequestsPerHour,
		AllowedTools:         cfg.AllowedTools,
		BlockedTools:         cfg.BlockedTools,
		MaxResponseLength:    cfg.MaxResponseLength,
	}
}

func configFromBody(body *PolicyConfigBody) *policy.Configuration {
	return &policy.Configuration{
		BlockHarmfulContent:  body.BlockHarmfulContent,
		BlockSensitiveTopics: body.BlockSensitiveTopics,
		BlockPII:             body.BlockPII,
		MaxRequestsPerMinute: body.MaxRequestsPerMinute,
		MaxRequestsPerHour:   body.MaxRequestsPerHour,
		AllowedTools:         body.AllowedTools,
		BlockedTools:         body.BlockedTools,
		MaxResponseLength:    body.MaxResponseLength,
	}
}
