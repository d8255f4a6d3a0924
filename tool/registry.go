package tool

import (
	"context"
	"time"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/internal/util"
	"github.com/bookseekers/bookflow/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// CallTimeout bounds every tool invocation. A tool that exceeds it is
	// abandoned and reported as a timeout error; its goroutine keeps the
	// context cancellation to wind down.
	CallTimeout time.Duration
	// Logger receives per-call diagnostics.
	Logger core.Logger
}

// Registry holds the tools available to a run and dispatches calls with
// argument validation and a bounded timeout. It implements core.ToolRunner.
type Registry struct {
	tools   map[string]Tool
	timeout time.Duration
	logger  core.Logger
}

// NewRegistry builds a registry over the given tools.
func NewRegistry(tools []Tool, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		CallTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &Registry{tools: m, timeout: opts.CallTimeout, logger: opts.Logger}
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

type callOutcome struct {
	res core.ToolResult
	err error
}

// Call validates args against the tool's schema and executes it under the
// registry's per-call timeout. Unknown tools and invalid arguments fail
// fast without executing anything.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (core.ToolResult, error) {
	t, ok := r.tools[name]
	if !ok {
		return core.ToolResult{}, NewError(name, ErrorCodeNotFound, "tool is not registered")
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return core.ToolResult{}, NewError(name, ErrorCodeInvalidArguments, "%s", err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan callOutcome, 1)
	go func() {
		res, err := t.Call(callCtx, args)
		done <- callOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		r.logCall(name, time.Since(start), out.err)
		if out.err != nil {
			if tErr, ok := out.err.(*Error); ok {
				return core.ToolResult{}, tErr
			}
			return core.ToolResult{}, NewError(name, ErrorCodeExecution, "%s", out.err.Error())
		}
		return out.res, nil
	case <-callCtx.Done():
		err := NewError(name, ErrorCodeTimeout, "no response within %s", r.timeout)
		r.logCall(name, time.Since(start), err)
		return core.ToolResult{}, err
	}
}

func (r *Registry) logCall(name string, dur time.Duration, err error) {
	if r.logger == nil {
		return
	}
	if fl, ok := r.logger.(*logging.FlowLogger); ok {
		fl.LogToolCall(name, dur, err == nil, err)
		return
	}
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "duration", dur, "error", err)
		return
	}
	r.logger.Debug("tool call finished", "tool", name, "duration", dur)
}
