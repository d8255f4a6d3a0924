// Package flow implements the concrete conversational workflow: routing,
// parameter extraction, agent coordination, the merge barrier, response
// formatting and the error node, plus BuildGraph wiring them together.
package flow

// Node names of the default workflow topology.
const (
	RouterName      = "router"
	ExtractName     = "parameter_extraction"
	CoordinatorName = "agent_coordinator"
	MergeName       = "merge_results"
	FormatName      = "format_response"
	ErrorName       = "error"
)

// genericApology is the user-facing text the error node falls back to. It
// never leaks internal diagnostics.
const genericApology = "Sorry, something went wrong while handling your request. Please try again."
