package api

import (
	"github.com/wardenhq/warden/internal/tools"
)

// ErrorResp is the uniform error body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// ValidateCodeRequest is the body for POST /api/warden/code/validate.
type ValidateCodeRequest struct {
	Code string `json:"code"`
}

// ValidateCodeResponse reports the static validation outcome.
type ValidateCodeResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// ValidateContentRequest is the body for POST /api/warden/content/validate.
type ValidateContentRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
	Phase    string `json:"phase"` // "input" or "output"
}

// ValidateContentResponse reports the content policy outcome plus the
// sanitized form of the text.
type ValidateContentResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	Sanitized  string   `json:"sanitized"`
}

// ToolRequest is the body for tool registration and update.
type ToolRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  []tools.Parameter `json:"parameters,omitempty"`
	Code        string            `json:"code"`
}

// InvokeToolRequest is the body for tool invocation.
type InvokeToolRequest struct {
	Arguments map[string]any `json:"arguments,omitempty"`
}

// InvokeToolResponse carries the stringified tool result.
type InvokeToolResponse struct {
	Result string `json:"result"`
}

// PolicyConfigBody mirrors policy.Configuration on the wire. Custom
// filters are code, not data, so they never cross the HTTP boundary.
type PolicyConfigBody struct {
	BlockHarmfulContent  bool     `json:"block_harmful_content"`
	BlockSensitiveTopics bool     `json:"block_sensitive_topics"`
	BlockPII             bool     `json:"block_pii"`
	MaxRequestsPerMinute int      `json:"max_requests_per_minute"`
	MaxRequestsPerHour   int      `json:"max_requests_per_hour"`
	AllowedTools         []string `json:"allowed_tools,omitempty"`
	BlockedTools         []string `json:"blocked_tools,omitempty"`
	MaxResponseLength    int      `json:"max_response_length"`
}

// TurnRequest is the body for POST /v1/warden/turn.
type TurnRequest struct {
	Input string `json:"input"`
}

// TurnResponse is the finalized outcome of a guarded turn.
type TurnResponse struct {
	RequestID  string   `json:"request_id"`
	Text       string   `json:"text"`
	Refused    bool     `json:"refused"`
	Violations []string `json:"violations,omitempty"`
	LatencyMs  float64  `json:"latency_ms"`
}

// CreateIdentityRequest is the body for identity creation.
type CreateIdentityRequest struct {
	Name string `json:"name"`
}

// IdentityResponse is an identity row without its key hash. APIKey is
// only set on creation and rotation (shown once).
type IdentityResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	APIKeyPrefix string `json:"api_key_prefix"`
	APIKey       string `json:"api_key,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}
