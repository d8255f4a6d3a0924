package tool

import (
	"context"
	"strings"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/internal/util"
)

// BookDetailsName is the registry name of the single-book lookup tool.
const BookDetailsName = "book_details"

type bookDetailsArgs struct {
	Title  string `json:"title,omitempty" description:"Exact or partial book title"`
	Author string `json:"author,omitempty" description:"Author name"`
	ISBN   string `json:"isbn,omitempty" description:"ISBN, digits only or hyphenated"`
}

// BookDetails looks up one specific book by ISBN, title or author. ISBN
// wins when present since it is unambiguous.
type BookDetails struct {
	catalog []Book
}

// NewBookDetails builds the lookup tool over the given catalog.
func NewBookDetails(catalog []Book) *BookDetails {
	return &BookDetails{catalog: catalog}
}

// Name implements Tool.
func (t *BookDetails) Name() string { return BookDetailsName }

// Description implements Tool.
func (t *BookDetails) Description() string {
	return "Looks up details of one book by title, author or ISBN."
}

// Parameters implements Tool.
func (t *BookDetails) Parameters() map[string]any {
	return util.CreateSchema(bookDetailsArgs{})
}

// Call implements Tool.
func (t *BookDetails) Call(ctx context.Context, args map[string]any) (core.ToolResult, error) {
	title, _ := args["title"].(string)
	author, _ := args["author"].(string)
	isbn, _ := args["isbn"].(string)

	if title == "" && author == "" && isbn == "" {
		return core.ToolResult{}, NewError(BookDetailsName, ErrorCodeInvalidArguments,
			"at least one of title, author or isbn is required")
	}

	var found *Book
	for i := range t.catalog {
		b := &t.catalog[i]
		if isbn != "" {
			if normalizeISBN(b.ISBN) == normalizeISBN(isbn) {
				found = b
				break
			}
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(title)) {
			continue
		}
		if author != "" && !strings.Contains(strings.ToLower(b.Author), strings.ToLower(author)) {
			continue
		}
		found = b
		break
	}

	if found == nil {
		return core.ToolResult{NoResult: true}, nil
	}
	return core.ToolResult{Payload: map[string]any{
		"book": map[string]any{
			"id":       found.ID,
			"title":    found.Title,
			"author":   found.Author,
			"isbn":     found.ISBN,
			"genre":    found.Genre,
			"price":    found.Price,
			"age_from": found.AgeFrom,
			"age_to":   found.AgeTo,
			"summary":  found.Summary,
		},
	}}, nil
}

func normalizeISBN(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)
}
