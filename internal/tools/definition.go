package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParamType enumerates the declared type of one tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
	// ParamCode marks a parameter carrying a code expression; its value is
	// re-validated at every invocation before reaching the sandbox.
	ParamCode ParamType = "code"
)

var paramTypes = map[ParamType]bool{
	ParamString:  true,
	ParamNumber:  true,
	ParamBoolean: true,
	ParamArray:   true,
	ParamObject:  true,
	ParamCode:    true,
}

// Parameter declares one named tool argument.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// Definition is one custom tool: a named, user-authored capability with
// declared parameters and a code body. Instances are treated as immutable
// once registered; updates replace the whole definition.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	Code        string      `json:"code"`
}

// ParamNames returns the declared parameter names in order.
func (d *Definition) ParamNames() []string {
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return names
}

// namePattern is the shape every custom tool name must match.
var namePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// builtinNames are reserved for tools shipped with the agent itself;
// custom tool names must stay disjoint from them.
var builtinNames = map[string]bool{
	"web_search":    true,
	"calculator":    true,
	"current_time":  true,
	"read_document": true,
}

// InvalidNameError reports a registration-time name that fails the name
// pattern or collides with a built-in tool.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid tool name %q: %s", e.Name, e.Reason)
}

// DuplicateNameError reports a name already registered for the identity.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// NotFoundError reports an operation against an unregistered tool.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// checkName validates a tool name's shape and built-in disjointness.
func checkName(name string) error {
	if !namePattern.MatchString(name) {
		return &InvalidNameError{Name: name, Reason: "must match [a-z_][a-z0-9_]*"}
	}
	if builtinNames[strings.ToLower(name)] {
		return &InvalidNameError{Name: name, Reason: "collides with a built-in tool"}
	}
	return nil
}

// argumentSchema generates a JSON Schema document for the definition's
// parameter list. Code parameters are strings on the wire.
func argumentSchema(def *Definition) (map[string]any, error) {
	props := make(map[string]any, len(def.Parameters))
	var required []string
	for _, p := range def.Parameters {
		jsonType := string(p.Type)
		if p.Type == ParamCode {
			jsonType = "string"
		}
		props[p.Name] = map[string]any{"type": jsonType}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	// Round-trip through encoding/json so the compiler sees plain decoded
	// values (jsonschema v6 rejects Go-typed documents otherwise).
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
