// Package graph provides the directed workflow graph the engine executes:
// named nodes, static and conditional edges, barrier join nodes, and
// internal-node marking that keeps plumbing off the client delta stream.
package graph

import (
	"fmt"

	"github.com/bookseekers/bookflow/core"
)

// Node is one unit of work in the workflow graph. Run mutates the shared
// state; a returned error is recorded as an unrecoverable internal failure
// for the node. Nodes that want recoverable degradation record a
// core.NodeError on the state and return nil.
type Node interface {
	Name() string
	Run(rc *core.RunContext, st *core.State) error
}

// RouteFunc picks the successors of a node from the state after the node
// completes. It must be pure: no state mutation, no I/O.
type RouteFunc func(st *core.State) []string

// Graph is a validated workflow topology. Build it with the Add/Set
// methods, then Validate before execution. A Graph is immutable once
// handed to the engine.
type Graph struct {
	nodes       map[string]Node
	static      map[string][]string
	conditional map[string]RouteFunc
	entry       string
	joins       map[string]bool
	internal    map[string]bool
	fallback    string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[string]Node),
		static:      make(map[string][]string),
		conditional: make(map[string]RouteFunc),
		joins:       make(map[string]bool),
		internal:    make(map[string]bool),
	}
}

// AddNode registers a node. Node names must be unique.
func (g *Graph) AddNode(n Node) error {
	name := n.Name()
	if name == "" {
		return fmt.Errorf("node with empty name")
	}
	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("duplicate node %q", name)
	}
	g.nodes[name] = n
	return nil
}

// SetEntry names the node every run starts at.
func (g *Graph) SetEntry(name string) { g.entry = name }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// AddEdge adds static successors for from. Multiple successors fan out
// concurrently.
func (g *Graph) AddEdge(from string, to ...string) {
	g.static[from] = append(g.static[from], to...)
}

// AddConditionalEdge installs a routing function for from. A conditional
// edge overrides any static edges on the same node.
func (g *Graph) AddConditionalEdge(from string, route RouteFunc) {
	g.conditional[from] = route
}

// MarkJoin marks name as a barrier join: the scheduler must not start it
// until the state reports the barrier complete.
func (g *Graph) MarkJoin(name string) { g.joins[name] = true }

// IsJoin reports whether name is a barrier join.
func (g *Graph) IsJoin(name string) bool { return g.joins[name] }

// MarkInternal marks name as plumbing: its completion never produces a
// client-visible delta.
func (g *Graph) MarkInternal(name string) { g.internal[name] = true }

// IsInternal reports whether name is hidden from the delta stream.
func (g *Graph) IsInternal(name string) bool { return g.internal[name] }

// SetFallback names the node routed to when a RouteFunc panics.
func (g *Graph) SetFallback(name string) { g.fallback = name }

// Fallback returns the panic-fallback node name.
func (g *Graph) Fallback() string { return g.fallback }

// Node returns the node registered under name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Successors resolves the successors of name against the current state.
// Conditional routing wins over static edges; a panicking route function
// is treated as a routing failure and resolves to the fallback node.
func (g *Graph) Successors(name string, st *core.State) (next []string) {
	route, ok := g.conditional[name]
	if !ok {
		return g.static[name]
	}
	defer func() {
		if r := recover(); r != nil {
			st.RecordError(core.NewNodeError(name, core.KindInternal, false,
				"routing panic: %v", r))
			if g.fallback != "" {
				next = []string{g.fallback}
			} else {
				next = nil
			}
		}
	}()
	return route(st)
}

// Validate checks the topology: an entry exists, every edge endpoint is a
// registered node, and the fallback (when set) is registered.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph has no entry node")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node %q is not registered", g.entry)
	}
	if g.fallback != "" {
		if _, ok := g.nodes[g.fallback]; !ok {
			return fmt.Errorf("fallback node %q is not registered", g.fallback)
		}
	}
	for from, tos := range g.static {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge from unregistered node %q", from)
		}
		for _, to := range tos {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("edge %q -> unregistered node %q", from, to)
			}
		}
	}
	for from := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("conditional edge from unregistered node %q", from)
		}
	}
	for name := range g.joins {
		if _, ok := g.nodes[name]; !ok {
			return fmt.Errorf("join mark on unregistered node %q", name)
		}
	}
	return nil
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc struct {
	NodeName string
	Fn       func(rc *core.RunContext, st *core.State) error
}

// Name implements Node.
func (n NodeFunc) Name() string { return n.NodeName }

// Run implements Node.
func (n NodeFunc) Run(rc *core.RunContext, st *core.State) error {
	return n.Fn(rc, st)
}
