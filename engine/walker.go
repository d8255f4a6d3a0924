package engine

import (
	"fmt"
	"time"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/graph"
	"github.com/bookseekers/bookflow/logging"
)

// walker drives one run over the graph. Nodes execute in their own
// goroutines; completions funnel through a single channel so successor
// resolution and scheduling stay race-free. Each node is scheduled at
// most once per run, which is what makes terminal paths mutually
// exclusive.
type walker struct {
	graph  *graph.Graph
	rc     *core.RunContext
	st     *core.State
	logger core.Logger
	emit   func(d core.Delta)

	scheduled map[string]bool
	running   int
	completed chan string
}

func (w *walker) run() {
	w.scheduled = make(map[string]bool)
	w.completed = make(chan string)

	w.schedule(w.graph.Entry())

	for w.running > 0 {
		name := <-w.completed
		w.running--
		for _, succ := range w.graph.Successors(name, w.st) {
			if w.graph.IsJoin(succ) && !w.st.BarrierComplete() {
				// Not the last branch; the barrier holds the join back.
				continue
			}
			w.schedule(succ)
		}
	}
}

func (w *walker) schedule(name string) {
	if name == "" || w.scheduled[name] {
		return
	}
	node, ok := w.graph.Node(name)
	if !ok {
		w.st.RecordError(core.NewNodeError(name, core.KindInternal, false,
			"routed to unknown node"))
		return
	}
	w.scheduled[name] = true
	w.running++
	go w.runNode(node)
}

func (w *walker) runNode(node graph.Node) {
	name := node.Name()
	start := time.Now()

	var nodeErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				nodeErr = fmt.Errorf("panic: %v", r)
				w.st.RecordError(core.NewNodeError(name, core.KindInternal, false,
					"panic: %v", r))
				if fl, ok := w.logger.(*logging.FlowLogger); ok {
					fl.ErrorWithStack(nodeErr, "node panicked", "node", name)
				}
			}
		}()
		if err := node.Run(w.rc, w.st); err != nil {
			nodeErr = err
			w.st.RecordError(core.NewNodeError(name, core.KindInternal, false, "%s", err.Error()))
		}
	}()

	if fl, ok := w.logger.(*logging.FlowLogger); ok {
		fl.LogNodeExecution(name, time.Since(start), nodeErr == nil, nodeErr)
	} else if w.logger != nil {
		w.logger.Debug("node finished", "node", name, "duration", time.Since(start))
	}

	// Visible nodes that posted a branch result stream it in completion
	// order; plumbing nodes stay silent.
	if !w.graph.IsInternal(name) {
		if res, ok := w.st.Result(name); ok {
			w.emit(core.Delta{
				Node:    name,
				Kind:    core.DeltaResult,
				Text:    res.Text,
				Payload: res.Payload,
			})
		}
	}

	w.completed <- name
}
