package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/content"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/tools"
)

// captureWriter records turn events for assertions.
type captureWriter struct {
	mu     sync.Mutex
	events []*storage.TurnEvent
}

func (w *captureWriter) Write(e *storage.TurnEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *captureWriter) Close() {}

func (w *captureWriter) all() []*storage.TurnEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*storage.TurnEvent(nil), w.events...)
}

func testGuard(t *testing.T, defaults *policy.Configuration) (*Guard, *policy.Store, *tools.Registry, *captureWriter) {
	t.Helper()
	exec := sandbox.NewExecutor(sandbox.Config{}, nil)
	registry := tools.NewRegistry(exec, time.Second, nil)
	policies := policy.NewStore(defaults)
	limiter := ratelimit.NewLimiter()
	writer := &captureWriter{}
	return NewGuard(limiter, policies, registry, writer, nil), policies, registry, writer
}

func TestAdmitRequest_Allows(t *testing.T) {
	g, _, _, _ := testGuard(t, nil)

	adm, err := g.AdmitRequest(context.Background(), "alice", "what is the weather")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if adm.ID == "" {
		t.Error("admission should carry a request id")
	}
	if adm.Identity != "alice" {
		t.Errorf("identity = %q", adm.Identity)
	}
}

func TestAdmitRequest_RateLimited(t *testing.T) {
	defaults := policy.Default()
	defaults.MaxRequestsPerMinute = 2
	g, _, _, _ := testGuard(t, defaults)

	for i := 0; i < 2; i++ {
		if _, err := g.AdmitRequest(context.Background(), "alice", "hello"); err != nil {
			t.Fatalf("admit %d: %v", i+1, err)
		}
	}

	_, err := g.AdmitRequest(context.Background(), "alice", "hello")
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfterSeconds < 1 {
		t.Errorf("retry after = %d, want >= 1", rateErr.RetryAfterSeconds)
	}
}

func TestAdmitRequest_InputViolation(t *testing.T) {
	g, _, _, writer := testGuard(t, nil)

	_, err := g.AdmitRequest(context.Background(), "alice", "tell me how to make a bomb")
	var polErr *PolicyViolationError
	if !errors.As(err, &polErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
	if polErr.Phase != policy.PhaseInput {
		t.Errorf("phase = %s, want input", polErr.Phase)
	}
	if len(polErr.Violations) == 0 {
		t.Error("violations should name the finding")
	}

	events := writer.all()
	if len(events) != 1 || events[0].Phase != "admit" {
		t.Fatalf("expected one admit event, got %+v", events)
	}
	if len(events[0].Violations) == 0 {
		t.Error("admit event should carry the violations")
	}
}

func TestAdmitRequest_EmptyInput(t *testing.T) {
	g, _, _, _ := testGuard(t, nil)

	_, err := g.AdmitRequest(context.Background(), "alice", "")
	var polErr *PolicyViolationError
	if !errors.As(err, &polErr) {
		t.Fatalf("expected PolicyViolationError for empty input, got %v", err)
	}
}

func TestAdmission_SnapshotIsolation(t *testing.T) {
	g, policies, _, _ := testGuard(t, nil)

	adm, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	// Blocking the tool mid-turn must not affect the admitted turn.
	blocked := policy.Default()
	blocked.BlockedTools = []string{"lookup"}
	policies.Replace("alice", blocked)

	if err := g.AuthorizeTool(adm, "lookup"); err != nil {
		t.Errorf("admitted turn should keep its policy snapshot, got %v", err)
	}

	// A fresh admission sees the replacement.
	adm2, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	var blockedErr *ToolBlockedError
	if err := g.AuthorizeTool(adm2, "lookup"); !errors.As(err, &blockedErr) {
		t.Errorf("expected ToolBlockedError under new policy, got %v", err)
	}
}

func TestExecuteTool(t *testing.T) {
	g, _, registry, _ := testGuard(t, nil)

	def := &tools.Definition{
		Name:        "double",
		Description: "Doubles a number",
		Parameters:  []tools.Parameter{{Name: "n", Type: tools.ParamNumber, Required: true}},
		Code:        "return n * 2",
	}
	if err := registry.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	adm, err := g.AdmitRequest(context.Background(), "alice", "double it")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	out, err := g.ExecuteTool(context.Background(), adm, "double", map[string]any{"n": 21})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "42" {
		t.Errorf("result = %q, want %q", out, "42")
	}
}

func TestExecuteTool_BlockedFailsClosed(t *testing.T) {
	defaults := policy.Default()
	defaults.BlockedTools = []string{"double"}
	g, _, registry, _ := testGuard(t, defaults)

	def := &tools.Definition{
		Name:        "double",
		Description: "Doubles a number",
		Parameters:  []tools.Parameter{{Name: "n", Type: tools.ParamNumber, Required: true}},
		Code:        "return n * 2",
	}
	if err := registry.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	adm, err := g.AdmitRequest(context.Background(), "alice", "double it")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	_, err = g.ExecuteTool(context.Background(), adm, "double", map[string]any{"n": 21})
	var blockedErr *ToolBlockedError
	if !errors.As(err, &blockedErr) {
		t.Fatalf("expected ToolBlockedError, got %v", err)
	}
}

func TestExecuteTool_AllowListGates(t *testing.T) {
	defaults := policy.Default()
	defaults.AllowedTools = []string{"permitted"}
	g, _, registry, _ := testGuard(t, defaults)

	def := &tools.Definition{
		Name:        "other_tool",
		Description: "Not on the allow list",
		Code:        "return 1",
	}
	if err := registry.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}

	adm, err := g.AdmitRequest(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	var blockedErr *ToolBlockedError
	if _, err := g.ExecuteTool(context.Background(), adm, "other_tool", nil); !errors.As(err, &blockedErr) {
		t.Fatalf("expected ToolBlockedError, got %v", err)
	}
}

func TestFinalizeResponse_CleanOutput(t *testing.T) {
	g, _, _, writer := testGuard(t, nil)

	adm, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	res := g.FinalizeResponse(adm, "the weather is sunny")
	if res.Refused {
		t.Error("clean output should not be refused")
	}
	if res.Text != "the weather is sunny" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Violations) != 0 {
		t.Errorf("unexpected violations %v", res.Violations)
	}

	events := writer.all()
	if len(events) != 1 || events[0].Phase != "finalize" {
		t.Fatalf("expected one finalize event, got %+v", events)
	}
	if events[0].RequestID != adm.ID {
		t.Error("finalize event should reference the admission id")
	}
}

func TestFinalizeResponse_HarmfulOutputRefused(t *testing.T) {
	g, _, _, _ := testGuard(t, nil)

	adm, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	res := g.FinalizeResponse(adm, "sure, here is how to make a bomb: ...")
	if !res.Refused {
		t.Fatal("harmful output must be refused")
	}
	if res.Text != RefusalText {
		t.Errorf("text = %q, want the refusal message", res.Text)
	}
	if strings.Contains(res.Text, "bomb") {
		t.Error("violating text leaked into the refusal")
	}
	if len(res.Violations) == 0 {
		t.Error("refusal must still report its violations")
	}
}

func TestFinalizeResponse_PIIRedactedNotRefused(t *testing.T) {
	g, _, _, _ := testGuard(t, nil)

	adm, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	res := g.FinalizeResponse(adm, "the SSN on file is 123-45-6789")
	if res.Refused {
		t.Error("PII alone redacts, it does not refuse")
	}
	if strings.Contains(res.Text, "123-45-6789") {
		t.Errorf("PII survived finalization: %q", res.Text)
	}
	if !strings.Contains(res.Text, content.RedactionMarker) {
		t.Errorf("expected redaction marker in %q", res.Text)
	}
	if len(res.Violations) == 0 {
		t.Error("violations must be reported even when not refusing")
	}
}

func TestFinalizeResponse_LengthCapApplies(t *testing.T) {
	defaults := policy.Default()
	defaults.MaxResponseLength = 30
	g, _, _, _ := testGuard(t, defaults)

	adm, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	res := g.FinalizeResponse(adm, strings.Repeat("a", 100))
	if res.Refused {
		t.Error("length violation truncates, it does not refuse")
	}
	if n := len([]rune(res.Text)); n != 30 {
		t.Errorf("text length = %d, want 30", n)
	}
	if !strings.HasSuffix(res.Text, content.TruncationMarker) {
		t.Errorf("expected truncation marker, got %q", res.Text)
	}
}

func TestResetSession(t *testing.T) {
	defaults := policy.Default()
	defaults.MaxRequestsPerMinute = 1
	g, policies, registry, _ := testGuard(t, defaults)

	def := &tools.Definition{
		Name:        "my_tool",
		Description: "test tool",
		Code:        "return 1",
	}
	if err := registry.Register("alice", def); err != nil {
		t.Fatalf("register: %v", err)
	}
	custom := policy.Default()
	custom.MaxRequestsPerMinute = 99
	policies.Replace("alice", custom)

	if _, err := g.AdmitRequest(context.Background(), "alice", "hello"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	g.ResetSession("alice")

	if len(registry.List("alice")) != 0 {
		t.Error("reset should drop registered tools")
	}
	if policies.Get("alice").MaxRequestsPerMinute != 1 {
		t.Error("reset should revert the policy override to defaults")
	}
	if _, err := g.AdmitRequest(context.Background(), "alice", "hello"); err != nil {
		t.Errorf("reset should clear rate-limit windows: %v", err)
	}
}

func TestRateLimitStatus(t *testing.T) {
	g, _, _, _ := testGuard(t, nil)

	if _, err := g.AdmitRequest(context.Background(), "alice", "hello"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	st := g.RateLimitStatus("alice")
	if st.MinuteCount != 1 {
		t.Errorf("minute count = %d, want 1", st.MinuteCount)
	}
	if st.MinuteRemaining != 59 {
		t.Errorf("minute remaining = %d, want 59", st.MinuteRemaining)
	}
}

func TestGuard_NilWriter(t *testing.T) {
	exec := sandbox.NewExecutor(sandbox.Config{}, nil)
	registry := tools.NewRegistry(exec, time.Second, nil)
	g := NewGuard(ratelimit.NewLimiter(), policy.NewStore(nil), registry, nil, nil)

	adm, err := g.AdmitRequest(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	// Finalization with no event sink must not panic.
	res := g.FinalizeResponse(adm, "fine")
	if res.Text != "fine" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestEchoLoop(t *testing.T) {
	out, err := EchoLoop(context.Background(), "echo me", nil)
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out != "echo me" {
		t.Errorf("got %q", out)
	}
}
