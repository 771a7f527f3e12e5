// Package content enforces the conversational content policy: harmful and
// sensitive pattern families, PII detection and redaction, length capping,
// and caller-supplied custom filters.
package content

import (
	"fmt"

	"github.com/wardenhq/warden/internal/policy"
)

// RedactionMarker replaces every PII match during sanitization. It must
// never itself match a PII pattern, or sanitization stops being idempotent.
const RedactionMarker = "[REDACTED]"

// TruncationMarker terminates text cut at the response length cap.
const TruncationMarker = "...[truncated]"

// Family classifies a violation by which check produced it.
type Family int

const (
	FamilyEmpty Family = iota + 1
	FamilyHarmful
	FamilySensitive
	FamilyPII
	FamilyLength
	FamilyCustom
)

// Violation is one policy finding with its family and human-readable reason.
type Violation struct {
	Family Family
	Reason string
}

// Result is the outcome of a validation scan.
type Result struct {
	Valid      bool
	Violations []Violation
}

// Reasons returns the violation reasons in scan order.
func (r Result) Reasons() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Reason
	}
	return out
}

// HasFamily reports whether any violation belongs to the given family.
func (r Result) HasFamily(f Family) bool {
	for _, v := range r.Violations {
		if v.Family == f {
			return true
		}
	}
	return false
}

// Engine runs content checks against one policy configuration snapshot.
// An Engine is cheap to construct; sessions build one per turn so the
// whole turn observes a single consistent configuration.
type Engine struct {
	cfg *policy.Configuration
}

// NewEngine binds an engine to a configuration snapshot. A nil cfg uses
// the package defaults.
func NewEngine(cfg *policy.Configuration) *Engine {
	if cfg == nil {
		cfg = policy.Default()
	}
	return &Engine{cfg: cfg}
}

// Snapshot returns the configuration this engine enforces, read-only.
func (e *Engine) Snapshot() *policy.Configuration {
	return e.cfg
}

// Validate scans text for policy violations in the given phase. Each
// enabled pattern family contributes at most one violation (first match
// wins per family); PII scanning only applies to the output phase. Custom
// filters run last, in configured order. Never returns an error.
func (e *Engine) Validate(text string, phase policy.Phase) Result {
	if text == "" {
		return Result{Violations: []Violation{{FamilyEmpty, "content is empty"}}}
	}

	var violations []Violation

	if e.cfg.BlockHarmfulContent {
		for _, p := range harmfulPatterns {
			if p.re.MatchString(text) {
				violations = append(violations, Violation{FamilyHarmful, p.detail})
				break
			}
		}
	}

	if e.cfg.BlockSensitiveTopics {
		for _, p := range sensitivePatterns {
			if p.re.MatchString(text) {
				violations = append(violations, Violation{FamilySensitive, p.detail})
				break
			}
		}
	}

	if e.cfg.BlockPII && phase == policy.PhaseOutput {
		for _, p := range piiPatterns {
			if p.re.MatchString(text) {
				violations = append(violations, Violation{FamilyPII, p.detail})
				break
			}
		}
	}

	if phase == policy.PhaseOutput && e.cfg.MaxResponseLength > 0 {
		if n := len([]rune(text)); n > e.cfg.MaxResponseLength {
			violations = append(violations, Violation{
				FamilyLength,
				fmt.Sprintf("response length %d exceeds maximum %d", n, e.cfg.MaxResponseLength),
			})
		}
	}

	for _, filter := range e.cfg.CustomFilters {
		if v, failed := runFilter(filter, text, phase); failed {
			violations = append(violations, v)
		}
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// runFilter executes one custom filter, containing panics. A panicking
// filter is reported as a violation, not propagated.
func runFilter(filter policy.CustomFilter, text string, phase policy.Phase) (v Violation, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			v = Violation{FamilyCustom, fmt.Sprintf("custom filter panicked: %v", r)}
			failed = true
		}
	}()
	res := filter(text, phase)
	if res.Valid {
		return Violation{}, false
	}
	reason := res.Reason
	if reason == "" {
		reason = "custom filter rejected content"
	}
	return Violation{FamilyCustom, reason}, true
}

// Sanitize redacts every PII match and truncates to the configured
// response length. Applied regardless of the validation verdict.
// Idempotent: the redaction marker matches no PII pattern and truncation
// keeps the result at or under the cap, so a second pass is a no-op.
func (e *Engine) Sanitize(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, RedactionMarker)
	}
	return truncate(text, e.cfg.MaxResponseLength)
}

// truncate cuts text to at most maxLen runes, replacing the tail with the
// truncation marker. Never splits a multi-byte character.
func truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	marker := []rune(TruncationMarker)
	if maxLen <= len(marker) {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-len(marker)]) + TruncationMarker
}
