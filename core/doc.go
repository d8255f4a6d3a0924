// Package core defines the shared data model of the bookflow workflow engine:
// the per-run WorkflowState threaded through the graph, the request/channel
// types, branch results, the node error taxonomy, the streamed delta events
// and the narrow Reasoner / ToolRunner interfaces nodes depend on.
//
// Everything in this package is transport and provider agnostic. Concrete
// implementations live in the reasoner, tool, session and engine packages.
package core
