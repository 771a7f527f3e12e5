// Package sandbox compiles validated tool code into a restricted Starlark
// callable and runs it under a wall-clock deadline. The predeclared
// environment is exactly the declared parameters plus a fixed helper
// toolkit; sandboxed code has no ambient access to any other name, and
// the interpreter thread is cancelled and step-capped so a timed-out body
// does not keep burning CPU after the caller is unblocked.
package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/internal/codecheck"
)

const (
	// DefaultToolTimeout bounds a full tool-body run.
	DefaultToolTimeout = 5 * time.Second
	// DefaultExprTimeout bounds a single embedded sub-expression.
	DefaultExprTimeout = time.Second

	defaultMaxSteps = 10_000_000

	entryPoint = "__tool__"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

var paramNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ExecutionError reports a runtime fault inside sandboxed code. It is the
// terminal form of any such fault; nothing propagates past the Run
// boundary as a crash.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "Error: " + e.Message
}

// TimeoutError reports that a run exceeded its wall-clock deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Timeout)
}

// Config tunes an Executor. Zero values select the defaults.
type Config struct {
	ExprTimeout time.Duration // deadline for embedded sub-expressions
	MaxSteps    uint64        // interpreter step cap per thread
}

// Executor builds and runs sandboxed tool callables.
type Executor struct {
	exprTimeout time.Duration
	maxSteps    uint64
	logger      *zap.Logger
	predeclared starlark.StringDict
}

// NewExecutor creates an Executor with the fixed helper toolkit.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if cfg.ExprTimeout <= 0 {
		cfg.ExprTimeout = DefaultExprTimeout
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		exprTimeout: cfg.ExprTimeout,
		maxSteps:    cfg.MaxSteps,
		logger:      logger,
	}
	e.predeclared = e.toolkit()
	return e
}

// Handle is a compiled tool body ready to run.
type Handle struct {
	prog   *starlark.Program
	params []string
}

// Compile statically validates code and compiles it into a Handle whose
// callable scope is exactly paramNames plus the helper toolkit. Returns
// *codecheck.InvalidCodeError when validation fails.
func (e *Executor) Compile(code string, paramNames []string) (*Handle, error) {
	if res := codecheck.Validate(code); !res.Valid {
		return nil, &codecheck.InvalidCodeError{Violations: res.Violations}
	}
	for _, name := range paramNames {
		if !paramNamePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid parameter name %q", name)
		}
		if _, taken := e.predeclared[name]; taken {
			return nil, fmt.Errorf("parameter name %q shadows a sandbox helper", name)
		}
	}

	src := wrapBody(code, paramNames)
	_, prog, err := starlark.SourceProgramOptions(fileOptions, "<tool>", src, func(name string) bool {
		_, ok := e.predeclared[name]
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("compile tool body: %w", err)
	}
	return &Handle{prog: prog, params: append([]string(nil), paramNames...)}, nil
}

// Run executes a compiled handle with the given argument values, racing
// the call against the deadline (DefaultToolTimeout when timeout <= 0).
// On expiry the caller is unblocked immediately with *TimeoutError and
// the interpreter thread is cancelled. Runtime faults come back as
// *ExecutionError; successful results are coerced to text.
func (e *Executor) Run(ctx context.Context, h *Handle, args map[string]any, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}

	thread := &starlark.Thread{Name: "warden-tool"}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &ExecutionError{Message: fmt.Sprint(r)}}
			}
		}()
		text, err := e.call(thread, h, args)
		ch <- outcome{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.text, out.err
	case <-timer.C:
		thread.Cancel("deadline exceeded")
		return "", &TimeoutError{Timeout: timeout}
	case <-ctx.Done():
		thread.Cancel("request cancelled")
		return "", ctx.Err()
	}
}

// call initializes the program and invokes the entry point with the
// declared parameters bound positionally; missing arguments become None.
func (e *Executor) call(thread *starlark.Thread, h *Handle, args map[string]any) (string, error) {
	globals, err := h.prog.Init(thread, e.predeclared)
	if err != nil {
		return "", asExecutionError(err)
	}
	fn, ok := globals[entryPoint]
	if !ok {
		return "", &ExecutionError{Message: "tool entry point missing"}
	}

	tuple := make(starlark.Tuple, len(h.params))
	for i, name := range h.params {
		v, err := toStarlark(args[name])
		if err != nil {
			return "", &ExecutionError{Message: fmt.Sprintf("argument %q: %v", name, err)}
		}
		tuple[i] = v
	}

	v, err := starlark.Call(thread, fn, tuple, nil)
	if err != nil {
		return "", asExecutionError(err)
	}
	return stringify(v), nil
}

// asExecutionError converts interpreter errors into the terminal error
// form, unwrapping Starlark backtraces down to their message.
func asExecutionError(err error) error {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return &ExecutionError{Message: evalErr.Msg}
	}
	return &ExecutionError{Message: err.Error()}
}

// wrapBody turns a raw tool body into a module defining the entry point.
// Uniform indentation preserves the body's own relative indentation, and
// return statements in the body become returns from the entry function.
func wrapBody(code string, params []string) string {
	var sb strings.Builder
	sb.WriteString("def " + entryPoint + "(" + strings.Join(params, ", ") + "):\n")
	if strings.TrimSpace(code) == "" {
		sb.WriteString("    pass\n")
		return sb.String()
	}
	for _, line := range strings.Split(code, "\n") {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
