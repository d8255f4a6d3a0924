package flow

import (
	"fmt"

	"github.com/bookseekers/bookflow/agent"
	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/graph"
)

// BuildGraph wires the default topology:
//
//	router -> parameter_extraction -> agent_coordinator
//	       -> (dispatched agent branches, concurrently)
//	       -> merge_results (barrier) -> format_response
//
// with the error node catching unrecoverable failures at every stage.
// Agent order is dispatch-priority order.
func BuildGraph(agents []*agent.Agent) (*graph.Graph, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}

	g := graph.New()

	coordinator := NewCoordinator(agents)
	nodes := []graph.Node{
		NewRouter(),
		NewExtractor(),
		coordinator,
		NewMerge(),
		NewFormatter(),
		NewErrorHandler(),
	}
	for _, a := range agents {
		nodes = append(nodes, a)
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	g.SetEntry(RouterName)
	g.SetFallback(ErrorName)

	g.AddConditionalEdge(RouterName, routeOrError(RouterName, ExtractName))
	g.AddConditionalEdge(ExtractName, routeOrError(ExtractName, CoordinatorName))

	// The coordinator fans out to exactly the agents it dispatched.
	g.AddConditionalEdge(CoordinatorName, func(st *core.State) []string {
		if st.FreshFatal(CoordinatorName) {
			return []string{ErrorName}
		}
		return st.Routing().Agents
	})

	// Every agent converges on the barrier; the scheduler holds merge
	// back until the state says all dispatched branches concluded.
	for _, a := range agents {
		g.AddEdge(a.Name(), MergeName)
	}
	g.MarkJoin(MergeName)

	// A fatal error anywhere in the fan-out surfaces at the barrier.
	g.AddConditionalEdge(MergeName, func(st *core.State) []string {
		if st.HasFatal() {
			return []string{ErrorName}
		}
		return []string{FormatName}
	})

	g.AddConditionalEdge(FormatName, func(st *core.State) []string {
		if st.FreshFatal(FormatName) {
			return []string{ErrorName}
		}
		return nil
	})

	// Plumbing stays off the client stream; agent branches are visible.
	g.MarkInternal(RouterName)
	g.MarkInternal(ExtractName)
	g.MarkInternal(CoordinatorName)
	g.MarkInternal(MergeName)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// routeOrError sends the flow to the error node when the just-finished
// node recorded an unrecoverable failure, and to next otherwise.
func routeOrError(node string, next ...string) graph.RouteFunc {
	return func(st *core.State) []string {
		if st.FreshFatal(node) {
			return []string{ErrorName}
		}
		return next
	}
}
