// Package bookflow is a conversational workflow engine for a bookstore
// assistant: a directed graph of routing, parameter extraction, concurrent
// agent branches with tool fan-out, a merge barrier, and response
// formatting, streamed to the client as ordered deltas and persisted to a
// TTL session store.
//
// This file is the façade: New wires the default agents, tools and graph
// into an engine; Run and RunSync execute turns against it.
package bookflow

import (
	"context"

	"github.com/bookseekers/bookflow/agent"
	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/engine"
	"github.com/bookseekers/bookflow/flow"
	"github.com/bookseekers/bookflow/session"
	"github.com/bookseekers/bookflow/tool"
)

// Options configures a Bookflow instance.
type Options struct {
	// Catalog is the book inventory served by the search and details
	// tools.
	Catalog []tool.Book
	// FAQ is the store question corpus.
	FAQ []tool.FAQEntry
	// VectorIndex optionally pre-ranks catalog search semantically.
	VectorIndex tool.VectorIndex
	// Agents overrides the default agent set (general + voice + sales).
	// Order is dispatch-priority order.
	Agents []*agent.Agent
	// Tools overrides the built-in tool registry entirely.
	Tools core.ToolRunner
	// Sessions is the session store; in-memory when nil.
	Sessions session.Store
	// Reasoner is the reasoning service. Required.
	Reasoner core.Reasoner
	// Logger receives diagnostics.
	Logger core.Logger
	// Engine tunes run execution.
	Engine engine.Config
}

// Bookflow bundles the wired graph and engine behind a small API.
type Bookflow struct {
	engine *engine.Engine
}

// New wires a ready-to-run assistant. Only the reasoner is mandatory;
// everything else has workable defaults.
func New(optFns ...func(o *Options)) (*Bookflow, error) {
	opts := Options{
		Engine: engine.Config{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	agents := opts.Agents
	if len(agents) == 0 {
		agents = []*agent.Agent{
			agent.NewGeneral(),
			agent.NewGeneralVoice(),
			agent.NewSales(),
		}
	}

	tools := opts.Tools
	if tools == nil {
		tools = tool.NewRegistry([]tool.Tool{
			tool.NewBookSearch(opts.Catalog, func(o *tool.BookSearchOptions) {
				o.Index = opts.VectorIndex
			}),
			tool.NewFAQSearch(opts.FAQ),
			tool.NewBookDetails(opts.Catalog),
		}, func(o *tool.RegistryOptions) {
			o.Logger = opts.Logger
		})
	}

	g, err := flow.BuildGraph(agents)
	if err != nil {
		return nil, err
	}

	e, err := engine.New(g, func(o *engine.Options) {
		if opts.Engine.RunTimeout > 0 {
			o.Config.RunTimeout = opts.Engine.RunTimeout
		}
		if opts.Engine.EventBufferSize > 0 {
			o.Config.EventBufferSize = opts.Engine.EventBufferSize
		}
		o.Sessions = opts.Sessions
		o.Reasoner = opts.Reasoner
		o.Tools = tools
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	})
	if err != nil {
		return nil, err
	}

	return &Bookflow{engine: e}, nil
}

// Run starts a streaming turn. See engine.Engine.Run for the channel
// semantics.
func (b *Bookflow) Run(ctx context.Context, req core.Request) (string, <-chan core.Delta, <-chan error, error) {
	return b.engine.Run(ctx, req)
}

// RunSync executes a turn and returns the session id and final response.
func (b *Bookflow) RunSync(ctx context.Context, req core.Request) (string, string, error) {
	return b.engine.RunSync(ctx, req)
}

// StopRun cancels an in-flight run.
func (b *Bookflow) StopRun(runID string) {
	b.engine.StopRun(runID)
}

// DeleteSession removes a session's stored history.
func (b *Bookflow) DeleteSession(ctx context.Context, id string) error {
	return b.engine.DeleteSession(ctx, id)
}
