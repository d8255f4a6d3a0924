// Package engine executes the workflow graph: it admits requests, seeds
// run state from the session store, schedules nodes concurrently with a
// barrier join, streams ordered deltas to the client, and persists the
// turn afterwards. A client disconnect only stops delta delivery; the run
// itself continues on a detached context bounded by the run timeout so the
// session stays coherent.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/graph"
	"github.com/bookseekers/bookflow/logging"
	"github.com/bookseekers/bookflow/session"
)

// Config holds the engine's tunables.
type Config struct {
	// RunTimeout bounds a run's wall clock, including after the client
	// disconnected.
	RunTimeout time.Duration
	// EventBufferSize is the delta channel capacity.
	EventBufferSize int
}

// Options configures an Engine.
type Options struct {
	Config   Config
	Sessions session.Store
	Reasoner core.Reasoner
	Tools    core.ToolRunner
	Logger   core.Logger
}

// Engine runs workflow graphs against sessions.
type Engine struct {
	graph    *graph.Graph
	cfg      Config
	sessions session.Store
	reasoner core.Reasoner
	tools    core.ToolRunner
	logger   core.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New builds an engine over a validated graph.
func New(g *graph.Graph, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config: Config{
			RunTimeout:      60 * time.Second,
			EventBufferSize: 64,
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewMemoryStore()
	}
	if opts.Reasoner == nil {
		return nil, fmt.Errorf("a reasoner is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("a tool runner is required")
	}

	return &Engine{
		graph:    g,
		cfg:      opts.Config,
		sessions: opts.Sessions,
		reasoner: opts.Reasoner,
		tools:    opts.Tools,
		logger:   opts.Logger,
		active:   make(map[string]context.CancelFunc),
	}, nil
}

// Run admits a request and starts a workflow run. It returns the session
// id the run executes under (freshly created when the request carried
// none), the ordered delta stream, and an error channel that carries at
// most one terminal run error. Both channels close when the run's
// delivery ends.
//
// ctx is the client's context: cancelling it stops delta delivery but the
// run continues to completion on a detached context so branch results and
// the session turn are not lost.
func (e *Engine) Run(ctx context.Context, req core.Request) (string, <-chan core.Delta, <-chan error, error) {
	if err := req.Validate(); err != nil {
		return "", nil, nil, err
	}
	if req.Channel == "" {
		req.Channel = core.ChannelChat
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	req.SessionID = sessionID
	runID := uuid.NewString()

	// The run must survive client disconnects; only the timeout and
	// StopRun can cancel it.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RunTimeout)
	e.trackRun(runID, cancel)

	deltas := make(chan core.Delta, e.cfg.EventBufferSize)
	errsCh := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errsCh)
		defer e.untrackRun(runID)
		defer cancel()

		if err := e.execute(ctx, runCtx, runID, req, deltas); err != nil {
			errsCh <- err
		}
	}()

	return sessionID, deltas, errsCh, nil
}

// RunSync executes the run and drains the stream, returning the final
// response text.
func (e *Engine) RunSync(ctx context.Context, req core.Request) (string, string, error) {
	sessionID, deltas, errsCh, err := e.Run(ctx, req)
	if err != nil {
		return "", "", err
	}

	var final string
	for d := range deltas {
		if d.Kind == core.DeltaFinal {
			final = d.Text
		}
	}
	if err := <-errsCh; err != nil {
		return sessionID, "", err
	}
	return sessionID, final, nil
}

// StopRun cancels an in-flight run. Unknown ids are a no-op.
func (e *Engine) StopRun(runID string) {
	e.mu.Lock()
	cancel, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// DeleteSession removes a session's stored history.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

func (e *Engine) trackRun(runID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[runID] = cancel
}

func (e *Engine) untrackRun(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, runID)
}

// execute runs the graph to completion and persists the turn. clientCtx
// gates delivery only; runCtx gates the work.
func (e *Engine) execute(clientCtx, runCtx context.Context, runID string, req core.Request, deltas chan<- core.Delta) error {
	logger := e.logger
	if fl, ok := logger.(*logging.FlowLogger); ok {
		fl = fl.WithComponent("engine").WithSession(req.SessionID, runID)
		logger = fl
		defer fl.StartTimer("run")()
	}

	rec, err := e.sessions.Get(runCtx, req.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", req.SessionID, err)
	}

	st := core.NewState(req, session.RenderContext(rec))
	rc := &core.RunContext{
		Context:   runCtx,
		RunID:     runID,
		SessionID: req.SessionID,
		Reasoner:  e.reasoner,
		Tools:     e.tools,
		Logger:    logger,
	}

	w := &walker{
		graph:  e.graph,
		rc:     rc,
		st:     st,
		logger: logger,
		emit: func(d core.Delta) {
			d.SessionID = req.SessionID
			d.RunID = runID
			d.Timestamp = time.Now()
			select {
			case <-clientCtx.Done():
				// Client gone: keep working, stop delivering.
			case <-runCtx.Done():
				// Run deadline: a stalled reader must not strand branch
				// goroutines on a full buffer.
			case deltas <- d:
			}
		},
	}
	w.run()

	final, finalNode, ok := st.Final()
	if !ok {
		// Every terminal path sets a final response; reaching this point
		// means the topology is broken.
		return fmt.Errorf("run %s finished without a final response", runID)
	}

	// Final delta strictly after every branch delta, then the explicit
	// end-of-stream marker.
	w.emit(core.Delta{Node: finalNode, Kind: core.DeltaFinal, Text: final})
	w.emit(core.Delta{Kind: core.DeltaEnd})

	if err := e.persistTurn(runCtx, rec, req, final); err != nil {
		logger.Error("failed to persist session turn", "session_id", req.SessionID, "error", err)
		return err
	}
	return nil
}

// persistTurn appends the user and assistant turns and triggers rolling
// summarization. Indices continue from the loaded record so retried
// appends stay idempotent.
func (e *Engine) persistTurn(ctx context.Context, rec *session.Record, req core.Request, final string) error {
	base := 0
	if rec != nil {
		base = rec.NextIndex()
	}
	now := time.Now()
	err := e.sessions.Append(ctx, req.SessionID,
		session.Turn{Index: base, Role: session.RoleUser, Content: req.Text, Timestamp: now},
		session.Turn{Index: base + 1, Role: session.RoleAssistant, Content: final, Timestamp: now},
	)
	if err != nil {
		return fmt.Errorf("append session turn: %w", err)
	}

	err = e.sessions.SummarizeIfNeeded(ctx, req.SessionID, session.ReasonerSummaryFunc(e.reasoner))
	if err != nil {
		// Compaction can wait for the next turn; the history is intact.
		e.logger.Warn("session summarization skipped", "session_id", req.SessionID, "error", err)
	}
	return nil
}
