package flow

import (
	"github.com/bookseekers/bookflow/core"
)

// Merge is the barrier join. The scheduler only starts it once the state
// reports every dispatched branch concluded, so Run just verifies the
// bookkeeping is sound before formatting proceeds.
type Merge struct{}

// NewMerge builds the merge node.
func NewMerge() *Merge { return &Merge{} }

// Name implements the graph node contract.
func (m *Merge) Name() string { return MergeName }

// Run implements the graph node contract.
func (m *Merge) Run(rc *core.RunContext, st *core.State) error {
	if !st.BarrierComplete() {
		st.RecordError(core.NewNodeError(MergeName, core.KindBarrier, false,
			"merge started before all branches concluded"))
		return nil
	}

	routing := st.Routing()
	anyOutcome := false
	for _, b := range routing.Branches {
		if done, _ := st.BranchOutcome(b); done {
			anyOutcome = true
			break
		}
	}
	if !anyOutcome {
		st.RecordError(core.NewNodeError(MergeName, core.KindInternal, false,
			"no branch produced any outcome"))
		return nil
	}

	if rc.Logger != nil {
		rc.Logger.Debug("branches merged", "branches", routing.Branches)
	}
	return nil
}
