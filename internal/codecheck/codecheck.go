// Package codecheck statically rejects user-authored tool code containing
// capability-granting constructs. It is a deny-list and therefore
// incomplete against determined obfuscation; the sandbox package provides
// the hard boundary, this layer is a fast reject in front of it.
package codecheck

import (
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled capability patterns, one entry per denied capability class.
// Every firing class contributes exactly one violation; scanning never
// short-circuits so a single call surfaces all violated classes.
var capabilityPatterns = []struct {
	class string
	res   []*regexp.Regexp
}{
	{"dynamic module loading", []*regexp.Regexp{
		regexp.MustCompile(`\brequire\s*\(`),
		regexp.MustCompile(`\bimport\s*\(`),
		regexp.MustCompile(`\bload\s*\(`),
		regexp.MustCompile(`(?m)^\s*import\s+\w`),
		regexp.MustCompile(`\b__import__\b`),
	}},
	{"process access", []*regexp.Regexp{
		regexp.MustCompile(`\bprocess\.`),
		regexp.MustCompile(`\bglobalThis\b`),
		regexp.MustCompile(`\bglobal\s*\.`),
		regexp.MustCompile(`\bDeno\.`),
	}},
	{"filesystem access", []*regexp.Regexp{
		regexp.MustCompile(`\bfs\.`),
		regexp.MustCompile(`\bopen\s*\(`),
		regexp.MustCompile(`\breadFile\w*\b`),
		regexp.MustCompile(`\bwriteFile\w*\b`),
		regexp.MustCompile(`\bos\.path\b`),
		regexp.MustCompile(`\bpathlib\b`),
	}},
	{"subprocess spawning", []*regexp.Regexp{
		regexp.MustCompile(`\bchild_process\b`),
		regexp.MustCompile(`\bspawn\w*\s*\(`),
		regexp.MustCompile(`\bsubprocess\b`),
		regexp.MustCompile(`\bpopen\b`),
		regexp.MustCompile(`\bsystem\s*\(`),
	}},
	{"network access", []*regexp.Regexp{
		regexp.MustCompile(`\bfetch\s*\(`),
		regexp.MustCompile(`\bXMLHttpRequest\b`),
		regexp.MustCompile(`\bWebSocket\b`),
		regexp.MustCompile(`(?i)\bhttps?://`),
		regexp.MustCompile(`(?i)\b(ftp|ws|wss)://`),
		regexp.MustCompile(`\bsocket\b`),
		regexp.MustCompile(`\burllib\b`),
	}},
	{"dynamic code evaluation", []*regexp.Regexp{
		regexp.MustCompile(`\beval\s*\(`),
		regexp.MustCompile(`\bFunction\s*\(`),
		regexp.MustCompile(`\bnew\s+Function\b`),
		regexp.MustCompile(`\bexec\s*\(`),
		regexp.MustCompile(`\bcompile\s*\(`),
	}},
	{"timer scheduling", []*regexp.Regexp{
		regexp.MustCompile(`\bsetTimeout\b`),
		regexp.MustCompile(`\bsetInterval\b`),
		regexp.MustCompile(`\bsetImmediate\b`),
		regexp.MustCompile(`\bqueueMicrotask\b`),
	}},
	{"prototype tampering", []*regexp.Regexp{
		regexp.MustCompile(`__proto__`),
		regexp.MustCompile(`\bprototype\b`),
		regexp.MustCompile(`\bconstructor\s*\[`),
		regexp.MustCompile(`\bObject\.(assign|create|defineProperty|setPrototypeOf)\b`),
	}},
	{"environment access", []*regexp.Regexp{
		regexp.MustCompile(`\benv\s*\[`),
		regexp.MustCompile(`\bgetenv\b`),
		regexp.MustCompile(`\bprocess\.env\b`),
		regexp.MustCompile(`\bENV\b`),
	}},
}

// Violation names one denied capability class found in a code string,
// along with the first literal substring that matched it.
type Violation struct {
	Class string `json:"class"`
	Match string `json:"match"`
}

// String renders the violation as a user-facing reason.
func (v Violation) String() string {
	if v.Match == "" {
		return v.Class
	}
	return fmt.Sprintf("%s: disallowed construct %q", v.Class, v.Match)
}

// Result is the outcome of a validation scan. A code string is valid iff
// zero capability classes fired.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Reasons returns the violations rendered as strings, in scan order.
func (r Result) Reasons() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// Validate scans code against every capability class. Pure and
// deterministic; never returns an error.
func Validate(code string) Result {
	var violations []Violation
	for _, cp := range capabilityPatterns {
		// First matching pattern per class wins; remaining patterns in the
		// same class would only duplicate the reason.
		for _, re := range cp.res {
			if m := re.FindString(code); m != "" {
				violations = append(violations, Violation{
					Class: cp.class,
					Match: strings.TrimSpace(m),
				})
				break
			}
		}
	}
	return Result{Valid: len(violations) == 0, Violations: violations}
}

// InvalidCodeError is returned by components that refuse to proceed with
// code that failed validation.
type InvalidCodeError struct {
	Violations []Violation
}

func (e *InvalidCodeError) Error() string {
	classes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		classes[i] = v.Class
	}
	return "code validation failed: " + strings.Join(classes, ", ")
}
