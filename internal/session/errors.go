package session

import (
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/policy"
)

// RateLimitError reports an admission denied by the rate limiter.
type RateLimitError struct {
	Reason            string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %ds)", e.Reason, e.RetryAfterSeconds)
}

// PolicyViolationError reports conversational content rejected by the
// content policy, carrying the full violation list.
type PolicyViolationError struct {
	Phase      policy.Phase
	Violations []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("content policy violation on %s: %s",
		e.Phase, strings.Join(e.Violations, "; "))
}

// ToolBlockedError reports a tool invocation denied by authorization.
// One blocked tool invalidates the whole turn.
type ToolBlockedError struct {
	Tool   string
	Reason string
}

func (e *ToolBlockedError) Error() string {
	return fmt.Sprintf("tool %q blocked: %s", e.Tool, e.Reason)
}
