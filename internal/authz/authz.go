// Package authz decides whether a named tool invocation is permitted
// under the active policy configuration.
package authz

import (
	"strings"

	"github.com/wardenhq/warden/internal/policy"
)

// Decision is the outcome of an authorization lookup.
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorize checks a tool name against the configuration's block and
// allow lists. Blocked always wins; a nil allow list admits every name.
// Pure lookup, no state.
func Authorize(toolName string, cfg *policy.Configuration) Decision {
	if cfg == nil {
		return Decision{Allowed: true}
	}
	name := strings.ToLower(toolName)

	for _, blocked := range cfg.BlockedTools {
		if strings.ToLower(blocked) == name {
			return Decision{Allowed: false, Reason: "tool is blocked by policy: " + toolName}
		}
	}

	if cfg.AllowedTools != nil {
		for _, allowed := range cfg.AllowedTools {
			if strings.ToLower(allowed) == name {
				return Decision{Allowed: true}
			}
		}
		return Decision{Allowed: false, Reason: "tool is not in the allowed list: " + toolName}
	}

	return Decision{Allowed: true}
}
