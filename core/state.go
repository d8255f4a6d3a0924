package core

import (
	"fmt"
	"sync"
	"time"
)

// StateSchemaVersion tags serialized state snapshots so stores can detect
// incompatible shapes.
const StateSchemaVersion = 1

// Parameters holds the structured slots extracted from the user utterance.
// Absent slots stay nil/zero; nodes never guess values the extractor did
// not produce.
type Parameters struct {
	FAQQuery string   `json:"faq_query,omitempty"`
	Age      *int     `json:"age,omitempty"`
	AgeFrom  *int     `json:"age_from,omitempty"`
	AgeTo    *int     `json:"age_to,omitempty"`
	Genre    string   `json:"genre,omitempty"`
	Budget   *float64 `json:"budget,omitempty"`
	Purpose  string   `json:"purpose,omitempty"`
	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
	ISBN     string   `json:"isbn,omitempty"`
}

// WantsBooks reports whether any book-search slot is populated.
func (p Parameters) WantsBooks() bool {
	return p.Age != nil || p.AgeFrom != nil || p.AgeTo != nil ||
		p.Genre != "" || p.Budget != nil || p.Purpose != ""
}

// WantsDetails reports whether the utterance targets one specific book.
func (p Parameters) WantsDetails() bool {
	return p.Title != "" || p.Author != "" || p.ISBN != ""
}

// RoutingDecision is what the router and coordinator write into the state:
// the channel profile, the agents selected to handle the turn in priority
// order, per-agent tool allowances, and the branch multiset the barrier
// join waits for.
type RoutingDecision struct {
	// ChannelProfile is the validated channel the run executes under.
	ChannelProfile Channel `json:"channel_profile"`
	// Agents lists the dispatched agents in priority order. Format renders
	// fragments in this order.
	Agents []string `json:"agents"`
	// AllowedTools maps each dispatched agent to the tools it may call.
	AllowedTools map[string][]string `json:"allowed_tools"`
	// Branches is the barrier key: the exact set of branch result keys the
	// merge node waits for. Fixed at dispatch time.
	Branches []string `json:"branches"`
	// Reasoning is a short routing trace for diagnostics.
	Reasoning string `json:"reasoning,omitempty"`
	// Confidence is the coordinator's confidence in the selection, 0..1.
	Confidence float64 `json:"confidence,omitempty"`
}

// ResultStatus classifies a branch outcome.
type ResultStatus string

const (
	// StatusOK means the branch produced content.
	StatusOK ResultStatus = "ok"
	// StatusNoResult means the branch ran fine but found nothing.
	StatusNoResult ResultStatus = "no_result"
	// StatusError means the branch degraded due to a recorded error.
	StatusError ResultStatus = "error"
)

// BranchResult is one branch's contribution to the merged state.
type BranchResult struct {
	// Branch is the result key this was posted under.
	Branch string `json:"branch"`
	// Text is the human-readable fragment, when any.
	Text string `json:"text,omitempty"`
	// Payload carries structured output.
	Payload map[string]any `json:"payload,omitempty"`
	// Status classifies the outcome.
	Status ResultStatus `json:"status"`
	// Time is when the result was posted.
	Time time.Time `json:"time"`
}

// State is the shared workflow state for one run. All mutation goes through
// methods that hold the state's lock; branch results are write-once per key
// and dispatch happens at most once. A *State is safe for concurrent use by
// the parallel branch goroutines.
type State struct {
	mu sync.Mutex

	request Request
	// historyContext is the rendered prior-conversation block seeded at
	// run start, immutable afterwards.
	historyContext string

	params    Parameters
	hasParams bool

	routing    RoutingDecision
	dispatched bool

	results map[string]*BranchResult
	order   []string
	errs    []*NodeError

	final    string
	hasFinal bool
	// finalNode is the node that won the SetFinal race, for delta
	// attribution.
	finalNode string
}

// NewState seeds a fresh state for a run. historyContext is the rendered
// prior-conversation block (may be empty for new sessions).
func NewState(req Request, historyContext string) *State {
	if req.Channel == "" {
		req.Channel = ChannelChat
	}
	return &State{
		request:        req,
		historyContext: historyContext,
		results:        make(map[string]*BranchResult),
	}
}

// Request returns the originating request.
func (s *State) Request() Request { return s.request }

// HistoryContext returns the rendered prior-conversation block.
func (s *State) HistoryContext() string { return s.historyContext }

// Parameters returns the extracted slots (zero value before extraction).
func (s *State) Parameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParameters stores the extracted slots.
func (s *State) SetParameters(p Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	s.hasParams = true
}

// HasParameters reports whether extraction ran (even if it produced an
// empty slot set).
func (s *State) HasParameters() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasParams
}

// Routing returns the current routing decision.
func (s *State) Routing() RoutingDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routing
}

// SetChannelProfile records the validated channel. Called by the router
// before dispatch.
func (s *State) SetChannelProfile(c Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routing.ChannelProfile = c
}

// Dispatch fixes the routing decision and the barrier branch set. It may
// succeed at most once per run; a second call means two coordinators raced
// and the join key would be ambiguous.
func (s *State) Dispatch(d RoutingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatched {
		return fmt.Errorf("routing already dispatched (agents %v)", s.routing.Agents)
	}
	if len(d.Branches) == 0 {
		return fmt.Errorf("dispatch with empty branch set")
	}
	if d.ChannelProfile == "" {
		d.ChannelProfile = s.routing.ChannelProfile
	}
	s.routing = d
	s.dispatched = true
	return nil
}

// Dispatched reports whether the coordinator has fixed the branch set.
func (s *State) Dispatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched
}

// PutResult posts a branch result under key. Keys are write-once: a second
// write returns a *BarrierViolationError and leaves the first result
// untouched.
func (s *State) PutResult(key string, res BranchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.results[key]; ok {
		return &BarrierViolationError{
			Key:          key,
			FirstWriter:  prev.Branch,
			SecondWriter: res.Branch,
		}
	}
	res.Branch = key
	if res.Time.IsZero() {
		res.Time = time.Now()
	}
	s.results[key] = &res
	s.order = append(s.order, key)
	return nil
}

// Result returns the branch result posted under key, if any.
func (s *State) Result(key string) (BranchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[key]
	if !ok {
		return BranchResult{}, false
	}
	return *r, true
}

// Results returns all posted branch results in posting order.
func (s *State) Results() []BranchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BranchResult, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.results[k])
	}
	return out
}

// RecordError appends a node error to the run's error log.
func (s *State) RecordError(err *NodeError) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Errors returns a copy of the recorded errors.
func (s *State) Errors() []*NodeError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*NodeError, len(s.errs))
	copy(out, s.errs)
	return out
}

// FreshFatal reports whether node recorded an unrecoverable error, used by
// per-node conditional routing.
func (s *State) FreshFatal(node string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.errs {
		if e.Node == node && !e.Recoverable {
			return true
		}
	}
	return false
}

// HasFatal reports whether any unrecoverable error has been recorded.
func (s *State) HasFatal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.errs {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// BranchOutcome reports whether branch has concluded: either a posted
// result or a recorded error attributed to it.
func (s *State) BranchOutcome(branch string) (done bool, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[branch]; ok {
		return true, false
	}
	for _, e := range s.errs {
		if e.Node == branch {
			return true, true
		}
	}
	return false, false
}

// BarrierComplete reports whether every dispatched branch has concluded.
// Before dispatch it is false: the barrier cannot fire without a key.
func (s *State) BarrierComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dispatched {
		return false
	}
	for _, b := range s.routing.Branches {
		if _, ok := s.results[b]; ok {
			continue
		}
		concluded := false
		for _, e := range s.errs {
			if e.Node == b {
				concluded = true
				break
			}
		}
		if !concluded {
			return false
		}
	}
	return true
}

// SetFinal records the user-facing response. First writer wins; later
// calls report false so the error node can tell whether a response already
// exists.
func (s *State) SetFinal(node, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasFinal {
		return false
	}
	s.final = text
	s.finalNode = node
	s.hasFinal = true
	return true
}

// Final returns the user-facing response, its producing node, and whether
// one was set.
func (s *State) Final() (text, node string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.finalNode, s.hasFinal
}
