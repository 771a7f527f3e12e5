// Package tools manages the per-identity set of custom tool definitions:
// validated registration, atomic replacement on update, and sandboxed
// invocation with schema-checked arguments.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/codecheck"
	"github.com/wardenhq/warden/internal/sandbox"
)

// entry pairs a definition with its compiled artifacts. Entries are
// immutable; Register and Update install a freshly built entry so a
// concurrently running invocation keeps the version it started with.
type entry struct {
	def    *Definition
	handle *sandbox.Handle
	schema *jsonschema.Schema
}

// Registry holds custom tool sets keyed by identity.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]map[string]*entry

	exec        *sandbox.Executor
	toolTimeout time.Duration
	logger      *zap.Logger
}

// NewRegistry creates a Registry executing tool bodies on exec. A zero
// toolTimeout uses the sandbox default.
func NewRegistry(exec *sandbox.Executor, toolTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byIdentity:  make(map[string]map[string]*entry),
		exec:        exec,
		toolTimeout: toolTimeout,
		logger:      logger,
	}
}

// Register validates and installs a new definition for an identity.
// Name-uniqueness and name-pattern checks happen before the code
// validator is involved.
func (r *Registry) Register(identity string, def *Definition) error {
	if err := checkName(def.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byIdentity[identity]
	if _, exists := set[def.Name]; exists {
		return &DuplicateNameError{Name: def.Name}
	}

	e, err := r.build(def)
	if err != nil {
		return err
	}
	if set == nil {
		set = make(map[string]*entry)
		r.byIdentity[identity] = set
	}
	set[def.Name] = e
	r.logger.Info("tool registered",
		zap.String("identity", identity),
		zap.String("tool", def.Name),
	)
	return nil
}

// Update atomically replaces an existing definition.
func (r *Registry) Update(identity string, def *Definition) error {
	if err := checkName(def.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byIdentity[identity]
	if _, exists := set[def.Name]; !exists {
		return &NotFoundError{Name: def.Name}
	}
	e, err := r.build(def)
	if err != nil {
		return err
	}
	set[def.Name] = e
	return nil
}

// Delete removes a definition.
func (r *Registry) Delete(identity, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byIdentity[identity]
	if _, exists := set[name]; !exists {
		return &NotFoundError{Name: name}
	}
	delete(set, name)
	return nil
}

// Get returns a definition, or nil if not registered.
func (r *Registry) Get(identity, name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byIdentity[identity][name]; ok {
		return e.def
	}
	return nil
}

// List returns the identity's definitions sorted by name.
func (r *Registry) List(identity string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byIdentity[identity]
	out := make([]*Definition, 0, len(set))
	for _, e := range set {
		out = append(out, e.def)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Name > out[j].Name; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Reset drops every definition for an identity.
func (r *Registry) Reset(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byIdentity, identity)
}

// Invoke runs a registered tool with the given arguments. Arguments are
// validated against the definition's generated schema, code-typed
// arguments are re-validated, and the body runs in the sandbox. Runtime
// faults inside the body come back as result text ("Error: ..."), never
// as an error, so one malfunctioning tool cannot abort the caller's turn.
func (r *Registry) Invoke(ctx context.Context, identity, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	e, ok := r.byIdentity[identity][name]
	r.mu.RUnlock()
	if !ok {
		return "", &NotFoundError{Name: name}
	}

	args, err := normalizeArgs(args)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for tool %q: %v", name, err)
	}
	if err := e.schema.Validate(args); err != nil {
		return "", fmt.Errorf("invalid arguments for tool %q: %v", name, err)
	}

	for _, p := range e.def.Parameters {
		if p.Type != ParamCode {
			continue
		}
		code, _ := args[p.Name].(string)
		if code == "" {
			continue
		}
		if res := codecheck.Validate(code); !res.Valid {
			return "", &codecheck.InvalidCodeError{Violations: res.Violations}
		}
	}

	start := time.Now()
	text, err := r.exec.Run(ctx, e.handle, args, r.toolTimeout)
	if err != nil {
		var execErr *sandbox.ExecutionError
		if errors.As(err, &execErr) {
			r.logger.Warn("tool execution fault",
				zap.String("identity", identity),
				zap.String("tool", name),
				zap.String("message", execErr.Message),
			)
			return execErr.Error(), nil
		}
		return "", err
	}
	r.logger.Debug("tool executed",
		zap.String("identity", identity),
		zap.String("tool", name),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

// normalizeArgs round-trips arguments through encoding/json so schema
// validation and the sandbox both see plain decoded JSON values
// regardless of the Go types the caller supplied.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// build compiles a definition into an installable entry.
func (r *Registry) build(def *Definition) (*entry, error) {
	if strings.TrimSpace(def.Description) == "" {
		return nil, fmt.Errorf("tool %q: description is required", def.Name)
	}
	for _, p := range def.Parameters {
		if !paramTypes[p.Type] {
			return nil, fmt.Errorf("tool %q: parameter %q has unknown type %q", def.Name, p.Name, p.Type)
		}
	}

	handle, err := r.exec.Compile(def.Code, def.ParamNames())
	if err != nil {
		return nil, err
	}

	doc, err := argumentSchema(def)
	if err != nil {
		return nil, fmt.Errorf("tool %q: build argument schema: %w", def.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("arguments.json", doc); err != nil {
		return nil, fmt.Errorf("tool %q: compile argument schema: %w", def.Name, err)
	}
	schema, err := c.Compile("arguments.json")
	if err != nil {
		return nil, fmt.Errorf("tool %q: compile argument schema: %w", def.Name, err)
	}

	return &entry{def: def, handle: handle, schema: schema}, nil
}
