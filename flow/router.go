package flow

import (
	"github.com/bookseekers/bookflow/core"
)

// Router validates the inbound request and fixes the channel profile for
// the run. Invalid input is unrecoverable: there is nothing sensible to
// extract parameters from.
type Router struct{}

// NewRouter builds the router node.
func NewRouter() *Router { return &Router{} }

// Name implements the graph node contract.
func (r *Router) Name() string { return RouterName }

// Run implements the graph node contract.
func (r *Router) Run(rc *core.RunContext, st *core.State) error {
	req := st.Request()
	if err := req.Validate(); err != nil {
		st.RecordError(core.NewNodeError(RouterName, core.KindValidation, false, "%s", err.Error()))
		return nil
	}
	st.SetChannelProfile(req.Channel)
	if rc.Logger != nil {
		rc.Logger.Debug("request routed", "channel", req.Channel)
	}
	return nil
}
