package tool

import (
	"context"
	"sort"
	"strings"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/internal/util"
)

// BookSearchName is the registry name of the catalog search tool.
const BookSearchName = "book_search"

// Book is one catalog entry.
type Book struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Author  string   `json:"author"`
	ISBN    string   `json:"isbn"`
	Genre   string   `json:"genre"`
	AgeFrom int      `json:"age_from"`
	AgeTo   int      `json:"age_to"`
	Price   float64  `json:"price"`
	Purpose string   `json:"purpose,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// VectorIndex narrows a semantic index to what the search tool needs: a
// ranked list of catalog IDs for a free-text query. vectorstore.QdrantIndex
// implements it.
type VectorIndex interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

type bookSearchArgs struct {
	Query   string   `json:"query,omitempty" description:"Free-text description of the books wanted"`
	Age     *int     `json:"age,omitempty" description:"Reader age in years"`
	AgeFrom *int     `json:"age_from,omitempty" description:"Lower bound of the reader age range"`
	AgeTo   *int     `json:"age_to,omitempty" description:"Upper bound of the reader age range"`
	Genre   string   `json:"genre,omitempty" description:"Genre to filter on"`
	Budget  *float64 `json:"budget,omitempty" description:"Maximum total spend"`
	Purpose string   `json:"purpose,omitempty" description:"Why the books are wanted (learning, entertainment, gift, reference)"`
}

// BookSearchOptions configures the catalog search tool.
type BookSearchOptions struct {
	// Index is an optional semantic index; when set and the arguments
	// carry a free-text query, it pre-ranks the catalog.
	Index VectorIndex
	// IndexLimit caps semantic pre-ranking.
	IndexLimit int
	// MaxResults caps the returned book list.
	MaxResults int
}

// BookSearch filters a catalog by age range, genre, purpose and budget,
// optionally pre-ranked by a semantic index. The budget filter is an
// optimization: it keeps the cheapest matching books whose total stays
// within budget rather than dropping everything above a unit price.
type BookSearch struct {
	catalog []Book
	opts    BookSearchOptions
}

// NewBookSearch builds the catalog search tool.
func NewBookSearch(catalog []Book, optFns ...func(o *BookSearchOptions)) *BookSearch {
	opts := BookSearchOptions{
		IndexLimit: 25,
		MaxResults: 5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &BookSearch{catalog: catalog, opts: opts}
}

// Name implements Tool.
func (t *BookSearch) Name() string { return BookSearchName }

// Description implements Tool.
func (t *BookSearch) Description() string {
	return "Searches the book catalog by age range, genre, purpose and budget."
}

// Parameters implements Tool.
func (t *BookSearch) Parameters() map[string]any {
	return util.CreateSchema(bookSearchArgs{})
}

// Call implements Tool.
func (t *BookSearch) Call(ctx context.Context, args map[string]any) (core.ToolResult, error) {
	a := parseBookSearchArgs(args)

	candidates := t.catalog
	if t.opts.Index != nil && a.Query != "" {
		ids, err := t.opts.Index.Search(ctx, a.Query, t.opts.IndexLimit)
		if err != nil {
			return core.ToolResult{}, NewError(BookSearchName, ErrorCodeExecution, "semantic index: %s", err.Error())
		}
		candidates = t.byIDs(ids)
	}

	matches := make([]Book, 0, len(candidates))
	for _, b := range candidates {
		if !matchesAge(b, a) {
			continue
		}
		if a.Genre != "" && !strings.EqualFold(b.Genre, a.Genre) {
			continue
		}
		if a.Purpose != "" && b.Purpose != "" && !strings.EqualFold(b.Purpose, a.Purpose) {
			continue
		}
		matches = append(matches, b)
	}

	if a.Budget != nil {
		matches = fitBudget(matches, *a.Budget)
	}
	if len(matches) > t.opts.MaxResults {
		matches = matches[:t.opts.MaxResults]
	}

	if len(matches) == 0 {
		return core.ToolResult{NoResult: true}, nil
	}

	books := make([]map[string]any, 0, len(matches))
	for _, b := range matches {
		books = append(books, map[string]any{
			"id":      b.ID,
			"title":   b.Title,
			"author":  b.Author,
			"isbn":    b.ISBN,
			"genre":   b.Genre,
			"price":   b.Price,
			"summary": b.Summary,
		})
	}
	return core.ToolResult{Payload: map[string]any{"books": books}}, nil
}

func (t *BookSearch) byIDs(ids []string) []Book {
	byID := make(map[string]Book, len(t.catalog))
	for _, b := range t.catalog {
		byID[b.ID] = b
	}
	out := make([]Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

func matchesAge(b Book, a bookSearchArgs) bool {
	if a.Age != nil {
		return *a.Age >= b.AgeFrom && *a.Age <= b.AgeTo
	}
	if a.AgeFrom == nil && a.AgeTo == nil {
		return true
	}
	// Range query: the book's range must overlap the requested range.
	lo, hi := b.AgeFrom, b.AgeTo
	if a.AgeFrom != nil && hi < *a.AgeFrom {
		return false
	}
	if a.AgeTo != nil && lo > *a.AgeTo {
		return false
	}
	return true
}

// fitBudget keeps the cheapest books whose cumulative price stays within
// budget, preserving the incoming relevance order among the kept books.
func fitBudget(books []Book, budget float64) []Book {
	idx := make([]int, len(books))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return books[idx[i]].Price < books[idx[j]].Price
	})

	keep := make(map[int]bool, len(books))
	total := 0.0
	for _, i := range idx {
		if total+books[i].Price > budget {
			continue
		}
		total += books[i].Price
		keep[i] = true
	}

	out := make([]Book, 0, len(keep))
	for i, b := range books {
		if keep[i] {
			out = append(out, b)
		}
	}
	return out
}

func parseBookSearchArgs(args map[string]any) bookSearchArgs {
	var a bookSearchArgs
	if v, ok := args["query"].(string); ok {
		a.Query = v
	}
	if v, ok := toInt(args["age"]); ok {
		a.Age = &v
	}
	if v, ok := toInt(args["age_from"]); ok {
		a.AgeFrom = &v
	}
	if v, ok := toInt(args["age_to"]); ok {
		a.AgeTo = &v
	}
	if v, ok := args["genre"].(string); ok {
		a.Genre = v
	}
	if v, ok := toFloat(args["budget"]); ok {
		a.Budget = &v
	}
	if v, ok := args["purpose"].(string); ok {
		a.Purpose = v
	}
	return a
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
