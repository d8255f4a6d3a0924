package flow

import (
	"strings"

	"github.com/bookseekers/bookflow/core"
)

// Per-branch apology when an agent's branch failed outright. The other
// branches still contribute their fragments.
const branchFailedMessage = "Part of your request couldn't be completed right now."

// Formatter assembles the final response from the branch results, in the
// dispatch-priority order the coordinator declared. Producing nothing at
// all is unrecoverable: the run would otherwise end silently.
type Formatter struct{}

// NewFormatter builds the format node.
func NewFormatter() *Formatter { return &Formatter{} }

// Name implements the graph node contract.
func (f *Formatter) Name() string { return FormatName }

// Run implements the graph node contract.
func (f *Formatter) Run(rc *core.RunContext, st *core.State) error {
	routing := st.Routing()

	var fragments []string
	for _, name := range routing.Agents {
		res, ok := st.Result(name)
		if !ok {
			// Branch concluded with an error instead of a result.
			if done, failed := st.BranchOutcome(name); done && failed {
				fragments = append(fragments, branchFailedMessage)
			}
			continue
		}
		if strings.TrimSpace(res.Text) != "" {
			fragments = append(fragments, strings.TrimSpace(res.Text))
		}
	}

	if len(fragments) == 0 {
		st.RecordError(core.NewNodeError(FormatName, core.KindInternal, false,
			"no branch produced presentable text"))
		return nil
	}

	st.SetFinal(FormatName, strings.Join(fragments, "\n\n"))
	return nil
}
