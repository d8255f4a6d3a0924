// Package session provides conversation persistence: turn history with
// idempotent append by index, TTL-based expiry, and rolling summarization
// that keeps the most recent turns verbatim. Drivers: in-memory (tests,
// single process) and Redis (shared deployments).
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bookseekers/bookflow/core"
)

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance in a conversation. Index is the append key:
// re-appending an existing index is a no-op, which makes retries safe.
type Turn struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the stored state of one session.
type Record struct {
	ID string `json:"id"`
	// Turns is ordered by index. After compaction only the most recent
	// turns remain; older content lives in Summary.
	Turns []Turn `json:"turns"`
	// Summary is the rolling summary of compacted-away turns.
	Summary string `json:"summary,omitempty"`
	// LastIndex is the highest turn index ever appended, surviving
	// compaction so indices never restart.
	LastIndex int       `json:"last_index"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// NewRecord initializes an empty session record.
func NewRecord(id string, now time.Time) *Record {
	return &Record{ID: id, LastIndex: -1, Created: now, Updated: now}
}

// NextIndex returns the index the next appended turn should carry.
func (r *Record) NextIndex() int { return r.LastIndex + 1 }

// HasTurn reports whether a turn with index is present or already
// compacted away.
func (r *Record) HasTurn(index int) bool {
	if index <= r.LastIndex {
		for _, t := range r.Turns {
			if t.Index == index {
				return true
			}
		}
		// Indexes at or below LastIndex but missing from Turns were
		// compacted into the summary.
		if len(r.Turns) == 0 || index < r.Turns[0].Index {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Turns = make([]Turn, len(r.Turns))
	copy(cp.Turns, r.Turns)
	return &cp
}

// insertTurn adds t in index order, ignoring duplicates. Reports whether
// the record changed.
func (r *Record) insertTurn(t Turn) bool {
	if r.HasTurn(t.Index) {
		return false
	}
	pos := sort.Search(len(r.Turns), func(i int) bool {
		return r.Turns[i].Index > t.Index
	})
	r.Turns = append(r.Turns, Turn{})
	copy(r.Turns[pos+1:], r.Turns[pos:])
	r.Turns[pos] = t
	if t.Index > r.LastIndex {
		r.LastIndex = t.Index
	}
	return true
}

// Policy controls when summarization kicks in and what it preserves.
type Policy struct {
	// MaxTurns is the history length that triggers compaction.
	MaxTurns int
	// KeepRecent is how many of the newest turns stay verbatim.
	KeepRecent int
}

// DefaultPolicy mirrors the bookstore assistant defaults.
func DefaultPolicy() Policy {
	return Policy{MaxTurns: 10, KeepRecent: 4}
}

// SummaryFunc condenses prior summary plus aged-out turns into a new
// rolling summary.
type SummaryFunc func(ctx context.Context, prevSummary string, aged []Turn) (string, error)

// Store is the session persistence contract. Implementations must treat
// Get on an absent or expired id as (nil, nil), not an error.
type Store interface {
	// Get returns a copy of the record, or nil when absent/expired.
	// Reading refreshes the TTL (sliding expiry).
	Get(ctx context.Context, id string) (*Record, error)
	// Append adds turns idempotently by index, creating the record when
	// missing.
	Append(ctx context.Context, id string, turns ...Turn) error
	// SummarizeIfNeeded compacts the record per the store's policy using
	// summarize. A failed summarization leaves the record untouched.
	SummarizeIfNeeded(ctx context.Context, id string, summarize SummaryFunc) error
	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}

// RenderContext renders a record into the prior-conversation block seeded
// into run state. Empty for nil records.
func RenderContext(rec *Record) string {
	if rec == nil || (rec.Summary == "" && len(rec.Turns) == 0) {
		return ""
	}
	var b strings.Builder
	if rec.Summary != "" {
		b.WriteString("Previous conversation summary:\n")
		b.WriteString(rec.Summary)
		b.WriteString("\n\n")
	}
	if len(rec.Turns) > 0 {
		b.WriteString("Recent turns:\n")
		for _, t := range rec.Turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// compact splits the record's turns per policy and applies summarize to the
// aged-out prefix. The kept suffix is byte-identical to what was stored.
func compact(ctx context.Context, rec *Record, policy Policy, summarize SummaryFunc) (bool, error) {
	if len(rec.Turns) <= policy.MaxTurns {
		return false, nil
	}
	keep := policy.KeepRecent
	if keep < 0 {
		keep = 0
	}
	if keep >= len(rec.Turns) {
		return false, nil
	}

	aged := rec.Turns[:len(rec.Turns)-keep]
	recent := rec.Turns[len(rec.Turns)-keep:]

	summary, err := summarize(ctx, rec.Summary, aged)
	if err != nil {
		return false, fmt.Errorf("summarize session %s: %w", rec.ID, err)
	}

	rec.Summary = summary
	kept := make([]Turn, len(recent))
	copy(kept, recent)
	rec.Turns = kept
	return true, nil
}

// ReasonerSummaryFunc builds a SummaryFunc on top of the reasoning
// service. A plain fallback joins the turns when no reasoner is available.
func ReasonerSummaryFunc(r core.Reasoner) SummaryFunc {
	return func(ctx context.Context, prevSummary string, aged []Turn) (string, error) {
		var b strings.Builder
		if prevSummary != "" {
			b.WriteString("Existing summary:\n")
			b.WriteString(prevSummary)
			b.WriteString("\n\n")
		}
		b.WriteString("Conversation to fold in:\n")
		for _, t := range aged {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		return r.Invoke(ctx, core.ReasonRequest{
			Instructions: "Condense the conversation below into a short summary that preserves user preferences, constraints and unresolved questions. Output only the summary.",
			Prompt:       b.String(),
		})
	}
}
