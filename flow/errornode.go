package flow

import (
	"github.com/bookseekers/bookflow/core"
)

// ErrorHandler is the terminal error node. It logs the full diagnostics
// and guarantees the user gets a response: a generic apology unless some
// earlier node already set one.
type ErrorHandler struct{}

// NewErrorHandler builds the error node.
func NewErrorHandler() *ErrorHandler { return &ErrorHandler{} }

// Name implements the graph node contract.
func (h *ErrorHandler) Name() string { return ErrorName }

// Run implements the graph node contract.
func (h *ErrorHandler) Run(rc *core.RunContext, st *core.State) error {
	if rc.Logger != nil {
		for _, e := range st.Errors() {
			rc.Logger.Error("run error",
				"node", e.Node, "kind", e.Kind, "recoverable", e.Recoverable, "message", e.Message)
		}
	}
	st.SetFinal(ErrorName, genericApology)
	return nil
}
