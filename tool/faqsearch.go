package tool

import (
	"context"
	"strings"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/internal/util"
)

// FAQSearchName is the registry name of the FAQ lookup tool.
const FAQSearchName = "faq_search"

// FAQEntry is one question/answer pair in the FAQ corpus.
type FAQEntry struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords,omitempty"`
}

type faqSearchArgs struct {
	Query string `json:"query" description:"The user's question"`
}

// FAQSearchOptions configures the FAQ tool.
type FAQSearchOptions struct {
	// MinScore is the match threshold below which the tool reports
	// NoResult instead of a weak guess.
	MinScore float64
}

// FAQSearch scores the FAQ corpus against the query by keyword overlap and
// returns the best entry above the threshold. Below the threshold it
// reports NoResult; it never returns a weak match as if it were an answer.
type FAQSearch struct {
	entries  []FAQEntry
	minScore float64
}

// NewFAQSearch builds the FAQ lookup tool.
func NewFAQSearch(entries []FAQEntry, optFns ...func(o *FAQSearchOptions)) *FAQSearch {
	opts := FAQSearchOptions{MinScore: 0.3}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FAQSearch{entries: entries, minScore: opts.MinScore}
}

// Name implements Tool.
func (t *FAQSearch) Name() string { return FAQSearchName }

// Description implements Tool.
func (t *FAQSearch) Description() string {
	return "Answers store questions (hours, shipping, returns) from the FAQ."
}

// Parameters implements Tool.
func (t *FAQSearch) Parameters() map[string]any {
	return util.CreateSchema(faqSearchArgs{})
}

// Call implements Tool.
func (t *FAQSearch) Call(ctx context.Context, args map[string]any) (core.ToolResult, error) {
	query, _ := args["query"].(string)
	terms := tokenize(query)
	if len(terms) == 0 {
		return core.ToolResult{NoResult: true}, nil
	}

	var best *FAQEntry
	bestScore := 0.0
	for i := range t.entries {
		score := scoreEntry(&t.entries[i], terms)
		if score > bestScore {
			bestScore = score
			best = &t.entries[i]
		}
	}

	if best == nil || bestScore < t.minScore {
		return core.ToolResult{NoResult: true}, nil
	}
	return core.ToolResult{Payload: map[string]any{
		"question": best.Question,
		"answer":   best.Answer,
		"score":    bestScore,
	}}, nil
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// scoreEntry is the fraction of query terms found in the entry's question
// or keywords.
func scoreEntry(e *FAQEntry, terms []string) float64 {
	haystack := strings.ToLower(e.Question)
	for _, k := range e.Keywords {
		haystack += " " + strings.ToLower(k)
	}
	hits := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
