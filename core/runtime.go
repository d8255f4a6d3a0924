package core

import "context"

// ReasonRequest is a single call to the reasoning service. Callers shape
// behavior through instructions and context rather than provider-specific
// knobs.
type ReasonRequest struct {
	// Instructions is the system-level framing for the call.
	Instructions string
	// Prompt is the user-facing input to reason over.
	Prompt string
	// Context is optional prior-conversation context (summary plus
	// recent turns) rendered to text.
	Context string
	// JSONOutput asks the service for a single JSON object and nothing
	// else. The adapter does not validate the shape; callers parse.
	JSONOutput bool
}

// Reasoner is the narrow view of the reasoning service the workflow nodes
// depend on. Implementations bound latency and classify failures; a timeout
// surfaces as an error wrapping the adapter's timeout sentinel.
type Reasoner interface {
	Invoke(ctx context.Context, req ReasonRequest) (string, error)
}

// ToolResult is the outcome of a successful tool call. A tool that ran
// without error but found nothing reports NoResult true; it never invents
// content.
type ToolResult struct {
	// Payload is the structured output, shaped per tool.
	Payload map[string]any
	// NoResult is true when the tool found nothing for the arguments.
	NoResult bool
}

// ToolRunner dispatches validated tool calls. The engine injects one into
// every run; agent nodes select tools by name.
type ToolRunner interface {
	// Call validates args against the tool's schema and executes it under
	// the registry's per-call timeout.
	Call(ctx context.Context, name string, args map[string]any) (ToolResult, error)
	// Has reports whether a tool is registered under name.
	Has(name string) bool
}

// Logger is the minimal logging surface threaded through runs. The logging
// package provides slog-backed and no-op implementations.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RunContext carries the per-run collaborators handed to every node. Nodes
// receive it by pointer but must treat it as read-only.
type RunContext struct {
	context.Context

	// RunID uniquely identifies this run.
	RunID string
	// SessionID identifies the owning session.
	SessionID string

	// Reasoner is the bounded reasoning service for this run.
	Reasoner Reasoner
	// Tools dispatches tool calls.
	Tools ToolRunner
	// Logger is pre-scoped to the run.
	Logger Logger
}
