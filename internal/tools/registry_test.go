package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/codecheck"
	"github.com/wardenhq/warden/internal/sandbox"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	exec := sandbox.NewExecutor(sandbox.Config{}, nil)
	return NewRegistry(exec, time.Second, nil)
}

func calcDef() *Definition {
	return &Definition{
		Name:        "add_numbers",
		Description: "Adds two numbers",
		Parameters: []Parameter{
			{Name: "a", Type: ParamNumber, Required: true},
			{Name: "b", Type: ParamNumber, Required: true},
		},
		Code: "return a + b",
	}
}

func TestRegisterAndInvoke(t *testing.T) {
	r := testRegistry(t)

	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Invoke(context.Background(), "alice", "add_numbers",
		map[string]any{"a": 2, "b": 40})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "42" {
		t.Errorf("result = %q, want %q", out, "42")
	}
}

func TestRegister_NameValidation(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name     string
		toolName string
	}{
		{"uppercase", "MyTool"},
		{"leading digit", "1tool"},
		{"dash", "my-tool"},
		{"space", "my tool"},
		{"empty", ""},
		{"builtin collision", "calculator"},
		{"builtin collision web_search", "web_search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := calcDef()
			def.Name = tt.toolName
			err := r.Register("alice", def)
			var nameErr *InvalidNameError
			if !errors.As(err, &nameErr) {
				t.Errorf("expected InvalidNameError for %q, got %v", tt.toolName, err)
			}
		})
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	r := testRegistry(t)

	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register("alice", calcDef())
	var dupErr *DuplicateNameError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}

	// Same name under a different identity is fine.
	if err := r.Register("bob", calcDef()); err != nil {
		t.Errorf("register for other identity: %v", err)
	}
}

func TestRegister_InvalidCodeRejected(t *testing.T) {
	r := testRegistry(t)

	def := calcDef()
	def.Code = `return eval("a + b")`
	err := r.Register("alice", def)
	var codeErr *codecheck.InvalidCodeError
	if !errors.As(err, &codeErr) {
		t.Fatalf("expected InvalidCodeError, got %v", err)
	}

	// A rejected registration leaves nothing behind.
	if got := r.Get("alice", "add_numbers"); got != nil {
		t.Error("rejected tool should not be registered")
	}
}

func TestRegister_DescriptionRequired(t *testing.T) {
	r := testRegistry(t)

	def := calcDef()
	def.Description = "   "
	if err := r.Register("alice", def); err == nil {
		t.Fatal("blank description should be rejected")
	}
}

func TestRegister_UnknownParamType(t *testing.T) {
	r := testRegistry(t)

	def := calcDef()
	def.Parameters[0].Type = "integer"
	if err := r.Register("alice", def); err == nil {
		t.Fatal("unknown parameter type should be rejected")
	}
}

func TestInvoke_NotFound(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Invoke(context.Background(), "alice", "nonexistent", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestInvoke_ArgumentValidation(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{"a": 1}},
		{"nil args with required params", nil},
		{"wrong type", map[string]any{"a": "one", "b": 2}},
		{"undeclared argument", map[string]any{"a": 1, "b": 2, "c": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(context.Background(), "alice", "add_numbers", tt.args)
			if err == nil {
				t.Error("expected argument validation error")
			}
			if !strings.Contains(err.Error(), "invalid arguments") {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestInvoke_OptionalParameter(t *testing.T) {
	r := testRegistry(t)

	def := &Definition{
		Name:        "greet",
		Description: "Greets a name",
		Parameters: []Parameter{
			{Name: "name", Type: ParamString, Required: false},
		},
		Code: `return "hello " + name if name != None else "hello"`,
	}
	if err := r.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Invoke(context.Background(), "alice", "greet", nil)
	if err != nil {
		t.Fatalf("invoke without optional arg: %v", err)
	}
	if out != "hello" {
		t.Errorf("result = %q, want %q", out, "hello")
	}

	out, err = r.Invoke(context.Background(), "alice", "greet",
		map[string]any{"name": "bob"})
	if err != nil {
		t.Fatalf("invoke with optional arg: %v", err)
	}
	if out != "hello bob" {
		t.Errorf("result = %q, want %q", out, "hello bob")
	}
}

func TestInvoke_CodeArgumentRevalidated(t *testing.T) {
	r := testRegistry(t)

	def := &Definition{
		Name:        "apply_expr",
		Description: "Applies an expression to a value",
		Parameters: []Parameter{
			{Name: "value", Type: ParamNumber, Required: true},
			{Name: "expr", Type: ParamCode, Required: true},
		},
		Code: "return transform(value, expr)",
	}
	if err := r.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Invoke(context.Background(), "alice", "apply_expr",
		map[string]any{"value": 6, "expr": "x * 7"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "42" {
		t.Errorf("result = %q, want %q", out, "42")
	}

	_, err = r.Invoke(context.Background(), "alice", "apply_expr",
		map[string]any{"value": 6, "expr": `eval("x")`})
	var codeErr *codecheck.InvalidCodeError
	if !errors.As(err, &codeErr) {
		t.Fatalf("expected InvalidCodeError for code argument, got %v", err)
	}
}

func TestInvoke_RuntimeFaultBecomesResultText(t *testing.T) {
	r := testRegistry(t)

	def := &Definition{
		Name:        "divide",
		Description: "Divides a by b",
		Parameters: []Parameter{
			{Name: "a", Type: ParamNumber, Required: true},
			{Name: "b", Type: ParamNumber, Required: true},
		},
		Code: "return a / b",
	}
	if err := r.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Invoke(context.Background(), "alice", "divide",
		map[string]any{"a": 1, "b": 0})
	if err != nil {
		t.Fatalf("runtime fault must not surface as an error, got %v", err)
	}
	if !strings.HasPrefix(out, "Error: ") {
		t.Errorf("result = %q, want Error: prefix", out)
	}
}

func TestInvoke_TimeoutStaysAnError(t *testing.T) {
	exec := sandbox.NewExecutor(sandbox.Config{MaxSteps: 1 << 40}, nil)
	r := NewRegistry(exec, 100*time.Millisecond, nil)

	def := &Definition{
		Name:        "spin",
		Description: "Loops forever",
		Code:        "n = 0\nwhile True:\n    n += 1\nreturn n",
	}
	if err := r.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := r.Invoke(context.Background(), "alice", "spin", nil)
	var timeoutErr *sandbox.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}

	updated := calcDef()
	updated.Code = "return a * b"
	if err := r.Update("alice", updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	out, err := r.Invoke(context.Background(), "alice", "add_numbers",
		map[string]any{"a": 6, "b": 7})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "42" {
		t.Errorf("result = %q, want %q (updated body)", out, "42")
	}
}

func TestUpdate_NotRegistered(t *testing.T) {
	r := testRegistry(t)
	err := r.Update("alice", calcDef())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdate_InvalidReplacementKeepsOld(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}

	bad := calcDef()
	bad.Code = `return eval("a")`
	if err := r.Update("alice", bad); err == nil {
		t.Fatal("invalid replacement should be rejected")
	}

	// The previous definition still works.
	out, err := r.Invoke(context.Background(), "alice", "add_numbers",
		map[string]any{"a": 40, "b": 2})
	if err != nil {
		t.Fatalf("invoke after failed update: %v", err)
	}
	if out != "42" {
		t.Errorf("result = %q, want %q", out, "42")
	}
}

func TestDelete(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Delete("alice", "add_numbers"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var nf *NotFoundError
	if err := r.Delete("alice", "add_numbers"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError on second delete, got %v", err)
	}

	// The name can be registered again afterwards.
	if err := r.Register("alice", calcDef()); err != nil {
		t.Errorf("re-register after delete: %v", err)
	}
}

func TestList_SortedByName(t *testing.T) {
	r := testRegistry(t)

	for _, name := range []string{"zeta", "alpha", "mid_tool"} {
		def := &Definition{
			Name:        name,
			Description: "test tool",
			Code:        "return 1",
		}
		if err := r.Register("alice", def); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	defs := r.List("alice")
	if len(defs) != 3 {
		t.Fatalf("len = %d, want 3", len(defs))
	}
	want := []string{"alpha", "mid_tool", "zeta"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("defs[%d] = %q, want %q", i, d.Name, want[i])
		}
	}

	if got := r.List("nobody"); len(got) != 0 {
		t.Errorf("unknown identity should list zero tools, got %d", len(got))
	}
}

func TestReset_DropsAllTools(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register("alice", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("bob", calcDef()); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.Reset("alice")
	if len(r.List("alice")) != 0 {
		t.Error("alice should have no tools after reset")
	}
	if len(r.List("bob")) != 1 {
		t.Error("bob's tools must survive alice's reset")
	}
}
