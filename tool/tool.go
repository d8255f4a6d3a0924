// Package tool defines the Tool interface, a schema-validating Registry
// with per-call timeouts, and the built-in bookstore tools: catalog search,
// FAQ lookup and single-book details.
package tool

import (
	"context"
	"fmt"

	"github.com/bookseekers/bookflow/core"
)

// Tool is a capability an agent can invoke with structured arguments.
// Implementations must be safe for concurrent use: the engine fans agent
// branches out in parallel.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string
	// Description explains what the tool does, for routing and synthesis
	// prompts.
	Description() string
	// Parameters returns the JSON schema for the tool's arguments.
	Parameters() map[string]any
	// Call executes the tool. A clean run that found nothing returns
	// ToolResult{NoResult: true} and a nil error; errors are reserved for
	// actual failures.
	Call(ctx context.Context, args map[string]any) (core.ToolResult, error)
}

// Error codes carried by Error.
const (
	ErrorCodeTimeout          = "timeout"
	ErrorCodeExecution        = "execution"
	ErrorCodeNotFound         = "not_found"
	ErrorCodeInvalidArguments = "invalid_arguments"
)

// Error is a structured tool failure. The owning agent branch records it
// as a recoverable node error and degrades instead of aborting the run.
type Error struct {
	// Tool is the tool that failed.
	Tool string `json:"tool"`
	// Message describes the failure.
	Message string `json:"message"`
	// Code classifies the failure (timeout, execution, not_found,
	// invalid_arguments).
	Code string `json:"code"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %q failed (%s): %s", e.Tool, e.Code, e.Message)
}

// NewError builds a tool error.
func NewError(tool, code, format string, args ...any) *Error {
	return &Error{Tool: tool, Code: code, Message: fmt.Sprintf(format, args...)}
}
