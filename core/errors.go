package core

import (
	"fmt"
	"time"
)

// ErrorKind classifies node failures so routing and formatting can react
// uniformly without inspecting messages.
type ErrorKind string

const (
	// KindValidation marks malformed or unusable input (bad channel,
	// unparseable extraction output). Recoverable.
	KindValidation ErrorKind = "validation"
	// KindTool marks a tool invocation failure. Recoverable; the owning
	// branch degrades instead of aborting the run.
	KindTool ErrorKind = "tool"
	// KindNoResult marks a tool that ran fine but found nothing. Not a
	// failure; tracked so honesty reporting can distinguish it.
	KindNoResult ErrorKind = "no_result"
	// KindTimeout marks a bounded wait that elapsed (tool call, reasoner
	// call, whole run).
	KindTimeout ErrorKind = "timeout"
	// KindBarrier marks a write-once or join-bookkeeping violation. Always
	// fatal: the run state can no longer be trusted.
	KindBarrier ErrorKind = "barrier"
	// KindInternal marks an unclassified failure (panic, programming
	// error). Always fatal.
	KindInternal ErrorKind = "internal"
)

// NodeError is a failure recorded against the run state by a node. The
// routing layer inspects Recoverable to decide between the error node and
// degraded continuation.
type NodeError struct {
	// Node is the graph node (or branch key) that produced the error.
	Node string `json:"node"`
	// Kind classifies the failure.
	Kind ErrorKind `json:"kind"`
	// Message is a human-readable description. Never shown verbatim to
	// end users; the error node produces the user-facing text.
	Message string `json:"message"`
	// Recoverable is false for failures that must route to the error node.
	Recoverable bool `json:"recoverable"`
	// Time is when the error was recorded.
	Time time.Time `json:"time"`
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Node, e.Kind, e.Message)
}

// NewNodeError records a failure with the current timestamp.
func NewNodeError(node string, kind ErrorKind, recoverable bool, format string, args ...any) *NodeError {
	return &NodeError{
		Node:        node,
		Kind:        kind,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: recoverable,
		Time:        time.Now(),
	}
}

// BarrierViolationError is returned when a second writer attempts to post
// a result under an already-populated branch key. A violation means two
// branches believe they own the same key and the merged state would be
// arbitrary, so it is always fatal to the run.
type BarrierViolationError struct {
	// Key is the branch result key that was written twice.
	Key string
	// FirstWriter and SecondWriter identify the conflicting nodes when
	// known.
	FirstWriter  string
	SecondWriter string
}

func (e *BarrierViolationError) Error() string {
	return fmt.Sprintf("duplicate write to branch result %q (first %q, second %q)",
		e.Key, e.FirstWriter, e.SecondWriter)
}
