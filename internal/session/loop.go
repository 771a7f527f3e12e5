package session

import "context"

// ToolRunner executes one authorized tool invocation on behalf of the
// agent loop. The guard owns authorization and sandboxing; the loop only
// sees results.
type ToolRunner func(ctx context.Context, name string, args map[string]any) (string, error)

// AgentLoop is the external collaborator that produces raw model output
// for an admitted input. The core does not control how the loop decides
// to call tools; every call it makes goes through the supplied runner.
type AgentLoop func(ctx context.Context, input string, run ToolRunner) (string, error)

// EchoLoop is the default stand-in collaborator: it returns the admitted
// input unchanged and calls no tools. Useful for integration checks of
// the guard pipeline without a hosted model.
func EchoLoop(_ context.Context, input string, _ ToolRunner) (string, error) {
	return input, nil
}
