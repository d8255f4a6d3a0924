package flow

import (
	"github.com/bookseekers/bookflow/agent"
	"github.com/bookseekers/bookflow/core"
)

// Coordinator selects the agents for the turn and fixes the barrier branch
// set. Selection is deterministic: channel support plus each agent's
// dispatch predicate, in registration order. At least one agent must match
// or the run has nobody to answer with.
type Coordinator struct {
	agents []*agent.Agent
}

// NewCoordinator builds the coordinator over the registered agents.
// Registration order is dispatch-priority order.
func NewCoordinator(agents []*agent.Agent) *Coordinator {
	return &Coordinator{agents: agents}
}

// Name implements the graph node contract.
func (c *Coordinator) Name() string { return CoordinatorName }

// Run implements the graph node contract.
func (c *Coordinator) Run(rc *core.RunContext, st *core.State) error {
	channel := st.Routing().ChannelProfile
	params := st.Parameters()

	var names []string
	allowed := make(map[string][]string)
	for _, a := range c.agents {
		if !a.Supports(channel) {
			continue
		}
		if !a.Dispatchable(params) {
			continue
		}
		names = append(names, a.Name())
		allowed[a.Name()] = a.Tools()
	}

	if len(names) == 0 {
		st.RecordError(core.NewNodeError(CoordinatorName, core.KindInternal, false,
			"no agent available for channel %q", channel))
		return nil
	}

	decision := core.RoutingDecision{
		ChannelProfile: channel,
		Agents:         names,
		AllowedTools:   allowed,
		Branches:       names,
		Reasoning:      "deterministic selection by channel support and dispatch predicates",
		Confidence:     1.0,
	}
	if err := st.Dispatch(decision); err != nil {
		st.RecordError(core.NewNodeError(CoordinatorName, core.KindBarrier, false, "%s", err.Error()))
		return nil
	}
	if rc.Logger != nil {
		rc.Logger.Info("agents dispatched", "agents", names, "channel", channel)
	}
	return nil
}

// AgentNames returns the registered agent names for wiring fan-out edges.
func (c *Coordinator) AgentNames() []string {
	out := make([]string, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, a.Name())
	}
	return out
}
