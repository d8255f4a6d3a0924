package core

import "time"

// DeltaKind discriminates the entries on a run's delta stream.
type DeltaKind string

const (
	// DeltaResult carries the output of one completed visible node.
	DeltaResult DeltaKind = "result"
	// DeltaFinal carries the formatted response. Exactly one per run,
	// always after every DeltaResult.
	DeltaFinal DeltaKind = "final"
	// DeltaEnd is the explicit end-of-stream marker. Carries no content.
	DeltaEnd DeltaKind = "end"
)

// Delta is one entry on the ordered stream a client consumes while a run
// executes. Deltas for visible nodes are emitted in completion order;
// internal plumbing nodes never surface.
type Delta struct {
	// SessionID is the session the run belongs to.
	SessionID string `json:"session_id"`
	// RunID is the run that produced this delta.
	RunID string `json:"run_id"`
	// Node is the visible node (branch key) the delta came from. Empty
	// for DeltaEnd.
	Node string `json:"node,omitempty"`
	// Kind discriminates the entry.
	Kind DeltaKind `json:"kind"`
	// Text is the human-readable fragment, when the node produced one.
	Text string `json:"text,omitempty"`
	// Payload carries structured node output (book lists, FAQ hits).
	Payload map[string]any `json:"payload,omitempty"`
	// Timestamp is when the delta was emitted.
	Timestamp time.Time `json:"timestamp"`
}
