package flow

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/bookseekers/bookflow/core"
)

const extractInstructions = `Extract structured search parameters from the user's message.
Fields (all optional, omit what is not present):
- faq_query: string, the question when the user asks about the store (hours, shipping, returns, payment)
- age: integer, a single reader age in years
- age_from, age_to: integers, a reader age range
- genre: string
- budget: number, maximum spend
- purpose: one of "learning", "entertainment", "gift", "reference"
- title, author, isbn: strings identifying one specific book
Never invent values the message does not state.`

const extractRetryInstructions = extractInstructions + `

Your previous answer was not valid JSON. Output exactly one JSON object with only the fields above, no prose, no code fences.`

var validPurposes = map[string]bool{
	"learning":      true,
	"entertainment": true,
	"gift":          true,
	"reference":     true,
}

// Extractor turns the utterance into structured parameters via the
// reasoning service. Malformed output gets one stricter retry; a second
// failure degrades to an empty parameter set rather than aborting the run,
// since the agents can still work from the raw utterance.
type Extractor struct{}

// NewExtractor builds the parameter extraction node.
func NewExtractor() *Extractor { return &Extractor{} }

// Name implements the graph node contract.
func (e *Extractor) Name() string { return ExtractName }

// Run implements the graph node contract.
func (e *Extractor) Run(rc *core.RunContext, st *core.State) error {
	req := core.ReasonRequest{
		Instructions: extractInstructions,
		Prompt:       st.Request().Text,
		Context:      st.HistoryContext(),
		JSONOutput:   true,
	}

	params, err := e.extract(rc, req)
	if err != nil {
		req.Instructions = extractRetryInstructions
		params, err = e.extract(rc, req)
	}
	if err != nil {
		st.RecordError(core.NewNodeError(ExtractName, core.KindValidation, true,
			"extraction degraded to empty parameters: %s", err.Error()))
		st.SetParameters(core.Parameters{})
		return nil
	}

	st.SetParameters(cleanParameters(params))
	return nil
}

func (e *Extractor) extract(rc *core.RunContext, req core.ReasonRequest) (core.Parameters, error) {
	out, err := rc.Reasoner.Invoke(rc, req)
	if err != nil {
		return core.Parameters{}, err
	}

	var params core.Parameters
	if err := sonic.UnmarshalString(stripFences(out), &params); err != nil {
		return core.Parameters{}, err
	}
	return params, nil
}

// stripFences tolerates models that wrap JSON in markdown fences despite
// instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// cleanParameters drops values outside their valid domains instead of
// failing the run over a bad slot.
func cleanParameters(p core.Parameters) core.Parameters {
	if p.Age != nil && (*p.Age < 0 || *p.Age > 120) {
		p.Age = nil
	}
	if p.AgeFrom != nil && (*p.AgeFrom < 0 || *p.AgeFrom > 120) {
		p.AgeFrom = nil
	}
	if p.AgeTo != nil && (*p.AgeTo < 0 || *p.AgeTo > 120) {
		p.AgeTo = nil
	}
	if p.AgeFrom != nil && p.AgeTo != nil && *p.AgeFrom > *p.AgeTo {
		p.AgeFrom, p.AgeTo = p.AgeTo, p.AgeFrom
	}
	if p.Budget != nil && *p.Budget < 0 {
		p.Budget = nil
	}
	if p.Purpose != "" {
		p.Purpose = strings.ToLower(strings.TrimSpace(p.Purpose))
		if !validPurposes[p.Purpose] {
			p.Purpose = ""
		}
	}
	return p
}
