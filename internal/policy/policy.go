package policy

// Phase identifies which side of a conversational turn a piece of text
// belongs to. Content checks behave differently per phase (PII scanning
// only applies to output).
type Phase int

const (
	PhaseInput Phase = iota + 1
	PhaseOutput
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseOutput:
		return "output"
	default:
		return "unspecified"
	}
}

// FilterResult is the outcome of a single custom filter run.
type FilterResult struct {
	Valid  bool
	Reason string
}

// CustomFilter is a caller-supplied predicate run against conversational
// text. Filters run in configured order after the built-in pattern
// families; a failing filter contributes a violation, never an error.
type CustomFilter func(text string, phase Phase) FilterResult

// Configuration is the immutable per-identity policy snapshot governing
// all checks. Updates replace the whole value; a Configuration is never
// mutated after it has been handed to a store or a session.
type Configuration struct {
	BlockHarmfulContent  bool `json:"block_harmful_content"`
	BlockSensitiveTopics bool `json:"block_sensitive_topics"`
	BlockPII             bool `json:"block_pii"`

	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
	MaxRequestsPerHour   int `json:"max_requests_per_hour"`

	// AllowedTools nil means every tool is allowed. BlockedTools always
	// wins: a name present in both lists is denied.
	AllowedTools []string `json:"allowed_tools,omitempty"`
	BlockedTools []string `json:"blocked_tools,omitempty"`

	MaxResponseLength int `json:"max_response_length"`

	CustomFilters []CustomFilter `json:"-"`
}

// Default returns the baseline configuration applied to identities that
// have never been configured explicitly.
func Default() *Configuration {
	return &Configuration{
		BlockHarmfulContent:  true,
		BlockSensitiveTopics: false,
		BlockPII:             true,
		MaxRequestsPerMinute: 60,
		MaxRequestsPerHour:   1000,
		MaxResponseLength:    10000,
	}
}

// Clone returns a deep copy safe to modify before handing to Store.Replace.
func (c *Configuration) Clone() *Configuration {
	out := *c
	if c.AllowedTools != nil {
		out.AllowedTools = append([]string(nil), c.AllowedTools...)
	}
	if c.BlockedTools != nil {
		out.BlockedTools = append([]string(nil), c.BlockedTools...)
	}
	if c.CustomFilters != nil {
		out.CustomFilters = append([]CustomFilter(nil), c.CustomFilters...)
	}
	return &out
}
