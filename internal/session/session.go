// Package session orchestrates one guarded conversational turn: rate
// limiting and input validation at admission, tool authorization during
// the turn, output validation and sanitization at finalization.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/authz"
	"github.com/wardenhq/warden/internal/content"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/tools"
)

// RefusalText replaces output that violated the harmful or sensitive
// content families. The raw violating text never reaches the caller.
const RefusalText = "I can't help with that. The response was withheld by content policy."

// Guard composes the rate limiter, content policy engine, tool
// authorizer, and tool registry around conversational turns.
type Guard struct {
	limiter  *ratelimit.Limiter
	policies *policy.Store
	registry *tools.Registry
	writer   storage.EventWriter
	logger   *zap.Logger
}

// NewGuard wires a Guard. writer may be nil when no event sink is
// configured.
func NewGuard(
	limiter *ratelimit.Limiter,
	policies *policy.Store,
	registry *tools.Registry,
	writer storage.EventWriter,
	logger *zap.Logger,
) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		limiter:  limiter,
		policies: policies,
		registry: registry,
		writer:   writer,
		logger:   logger,
	}
}

// Admission is the token for one admitted turn. It captures the policy
// snapshot at admission so the whole turn observes a single consistent
// configuration even if the identity's policy is replaced mid-turn.
type Admission struct {
	ID       string
	Identity string

	cfg        *policy.Configuration
	engine     *content.Engine
	input      string
	admittedAt time.Time
	toolsRun   []string
}

// AdmitRequest gates one turn for an identity: rate limiter first, then
// input content validation. Fail-fast on either.
func (g *Guard) AdmitRequest(ctx context.Context, identity, inputText string) (*Admission, error) {
	cfg := g.policies.Get(identity)

	decision := g.limiter.Check(identity, cfg)
	if !decision.Allowed {
		g.logger.Info("request rate limited",
			zap.String("identity", identity),
			zap.Int("retry_after_s", decision.RetryAfterSeconds),
		)
		return nil, &RateLimitError{
			Reason:            decision.Reason,
			RetryAfterSeconds: decision.RetryAfterSeconds,
		}
	}

	engine := content.NewEngine(cfg)
	if res := engine.Validate(inputText, policy.PhaseInput); !res.Valid {
		g.writeEvent(&storage.TurnEvent{
			RequestID:    uuid.New().String(),
			Identity:     identity,
			Timestamp:    time.Now(),
			Phase:        "admit",
			PayloadSize:  uint32(len(inputText)),
			InputPreview: storage.TruncatePreview(inputText, storage.PreviewLength),
			Violations:   res.Reasons(),
		})
		return nil, &PolicyViolationError{Phase: policy.PhaseInput, Violations: res.Reasons()}
	}

	return &Admission{
		ID:         uuid.New().String(),
		Identity:   identity,
		cfg:        cfg,
		engine:     engine,
		input:      inputText,
		admittedAt: time.Now(),
	}, nil
}

// AuthorizeTool gates one requested tool name under the admission's
// policy snapshot. A denial aborts the turn: the caller must not execute
// this or any remaining tool.
func (g *Guard) AuthorizeTool(adm *Admission, toolName string) error {
	decision := authz.Authorize(toolName, adm.cfg)
	if !decision.Allowed {
		g.logger.Info("tool blocked",
			zap.String("identity", adm.Identity),
			zap.String("tool", toolName),
			zap.String("reason", decision.Reason),
		)
		return &ToolBlockedError{Tool: toolName, Reason: decision.Reason}
	}
	return nil
}

// ExecuteTool authorizes and runs one custom tool under the admission.
func (g *Guard) ExecuteTool(ctx context.Context, adm *Admission, toolName string, args map[string]any) (string, error) {
	if err := g.AuthorizeTool(adm, toolName); err != nil {
		return "", err
	}
	result, err := g.registry.Invoke(ctx, adm.Identity, toolName, args)
	if err != nil {
		return "", err
	}
	adm.toolsRun = append(adm.toolsRun, toolName)
	return result, nil
}

// TurnResult is the finalized outcome of a guarded turn. Violations are
// always reported, whichever branch produced the text.
type TurnResult struct {
	Text       string
	Violations []string
	Refused    bool
}

// FinalizeResponse validates and sanitizes the raw model output. A
// harmful or sensitive violation replaces the text with the fixed refusal
// message; any other outcome returns the sanitized text.
func (g *Guard) FinalizeResponse(adm *Admission, rawOutput string) TurnResult {
	res := adm.engine.Validate(rawOutput, policy.PhaseOutput)
	sanitized := adm.engine.Sanitize(rawOutput)

	result := TurnResult{
		Text:       sanitized,
		Violations: res.Reasons(),
	}
	if res.HasFamily(content.FamilyHarmful) || res.HasFamily(content.FamilySensitive) {
		result.Text = RefusalText
		result.Refused = true
	}

	g.writeEvent(&storage.TurnEvent{
		RequestID:     adm.ID,
		Identity:      adm.Identity,
		Timestamp:     time.Now(),
		Phase:         "finalize",
		PayloadSize:   uint32(len(rawOutput)),
		InputPreview:  storage.TruncatePreview(adm.input, storage.PreviewLength),
		OutputPreview: storage.TruncatePreview(result.Text, storage.PreviewLength),
		Refused:       result.Refused,
		Violations:    result.Violations,
		ToolsInvoked:  adm.toolsRun,
		LatencyMs:     float32(time.Since(adm.admittedAt)) / float32(time.Millisecond),
	})

	return result
}

// RateLimitStatus reports the identity's current windows without
// consuming a request.
func (g *Guard) RateLimitStatus(identity string) ratelimit.Status {
	return g.limiter.Status(identity, g.policies.Get(identity))
}

// ResetSession clears all per-identity state: rate-limit windows, policy
// configuration, and registered custom tools.
func (g *Guard) ResetSession(identity string) {
	g.limiter.Reset(identity)
	g.policies.Reset(identity)
	g.registry.Reset(identity)
	g.logger.Info("session reset", zap.String("identity", identity))
}

func (g *Guard) writeEvent(event *storage.TurnEvent) {
	if g.writer == nil {
		return
	}
	g.writer.Write(event)
}
