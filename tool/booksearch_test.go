package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []Book {
	return []Book{
		{ID: "1", Title: "The Little Dragon", Author: "M. Reed", ISBN: "978-1-0000-0001-1", Genre: "fantasy", AgeFrom: 4, AgeTo: 8, Price: 12.99, Purpose: "entertainment"},
		{ID: "2", Title: "Counting Stars", Author: "J. Okafor", ISBN: "978-1-0000-0002-8", Genre: "education", AgeFrom: 5, AgeTo: 7, Price: 18.50, Purpose: "learning"},
		{ID: "3", Title: "Quantum Tales", Author: "A. Ivanov", ISBN: "978-1-0000-0003-5", Genre: "science", AgeFrom: 12, AgeTo: 16, Price: 24.00, Purpose: "learning"},
		{ID: "4", Title: "Ocean Friends", Author: "M. Reed", ISBN: "978-1-0000-0004-2", Genre: "fantasy", AgeFrom: 3, AgeTo: 6, Price: 35.00, Purpose: "gift"},
	}
}

func TestBookSearchAgeFilter(t *testing.T) {
	ts := NewBookSearch(testCatalog())

	res, err := ts.Call(context.Background(), map[string]any{"age": 6})
	require.NoError(t, err)
	require.False(t, res.NoResult)

	books := res.Payload["books"].([]map[string]any)
	titles := make([]string, 0, len(books))
	for _, b := range books {
		titles = append(titles, b["title"].(string))
	}
	assert.ElementsMatch(t, []string{"The Little Dragon", "Counting Stars", "Ocean Friends"}, titles)
}

func TestBookSearchAgeRangeOverlap(t *testing.T) {
	ts := NewBookSearch(testCatalog())

	res, err := ts.Call(context.Background(), map[string]any{"age_from": 10, "age_to": 14})
	require.NoError(t, err)
	require.False(t, res.NoResult)

	books := res.Payload["books"].([]map[string]any)
	require.Len(t, books, 1)
	assert.Equal(t, "Quantum Tales", books[0]["title"])
}

func TestBookSearchBudgetOptimization(t *testing.T) {
	ts := NewBookSearch(testCatalog())

	// Age 6 matches three books (12.99 + 18.50 + 35.00). A $50 budget fits
	// the two cheapest; the $35 book would push the total over.
	res, err := ts.Call(context.Background(), map[string]any{"age": 6, "budget": 50.0})
	require.NoError(t, err)
	require.False(t, res.NoResult)

	books := res.Payload["books"].([]map[string]any)
	titles := make([]string, 0, len(books))
	total := 0.0
	for _, b := range books {
		titles = append(titles, b["title"].(string))
		total += b["price"].(float64)
	}
	assert.ElementsMatch(t, []string{"The Little Dragon", "Counting Stars"}, titles)
	assert.LessOrEqual(t, total, 50.0)
}

func TestBookSearchGenreAndPurpose(t *testing.T) {
	ts := NewBookSearch(testCatalog())

	res, err := ts.Call(context.Background(), map[string]any{"genre": "Fantasy", "purpose": "gift"})
	require.NoError(t, err)
	books := res.Payload["books"].([]map[string]any)
	require.Len(t, books, 1)
	assert.Equal(t, "Ocean Friends", books[0]["title"])
}

func TestBookSearchNoResult(t *testing.T) {
	ts := NewBookSearch(testCatalog())

	res, err := ts.Call(context.Background(), map[string]any{"genre": "horror"})
	require.NoError(t, err)
	assert.True(t, res.NoResult)
	assert.Nil(t, res.Payload)
}

type stubIndex struct {
	ids []string
	err error
}

func (s *stubIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	return s.ids, s.err
}

func TestBookSearchSemanticPreRanking(t *testing.T) {
	ts := NewBookSearch(testCatalog(), func(o *BookSearchOptions) {
		o.Index = &stubIndex{ids: []string{"3"}}
	})

	res, err := ts.Call(context.Background(), map[string]any{"query": "physics for kids"})
	require.NoError(t, err)
	books := res.Payload["books"].([]map[string]any)
	require.Len(t, books, 1)
	assert.Equal(t, "Quantum Tales", books[0]["title"])
}

func TestBookDetailsLookup(t *testing.T) {
	td := NewBookDetails(testCatalog())

	res, err := td.Call(context.Background(), map[string]any{"isbn": "9781000000035"})
	require.NoError(t, err)
	require.False(t, res.NoResult)
	book := res.Payload["book"].(map[string]any)
	assert.Equal(t, "Quantum Tales", book["title"])

	res, err = td.Call(context.Background(), map[string]any{"title": "ocean"})
	require.NoError(t, err)
	book = res.Payload["book"].(map[string]any)
	assert.Equal(t, "Ocean Friends", book["title"])

	res, err = td.Call(context.Background(), map[string]any{"title": "nonexistent"})
	require.NoError(t, err)
	assert.True(t, res.NoResult)

	_, err = td.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestFAQSearchThreshold(t *testing.T) {
	fs := NewFAQSearch([]FAQEntry{
		{Question: "What are your opening hours?", Answer: "We are open 9-18 Mon-Sat.", Keywords: []string{"open", "hours", "time"}},
		{Question: "Do you ship internationally?", Answer: "Yes, to most countries.", Keywords: []string{"shipping", "delivery"}},
	})

	res, err := fs.Call(context.Background(), map[string]any{"query": "when are you open, what hours"})
	require.NoError(t, err)
	require.False(t, res.NoResult)
	assert.Contains(t, res.Payload["answer"], "open 9-18")

	// Off-topic query stays below the threshold: no weak guesses.
	res, err = fs.Call(context.Background(), map[string]any{"query": "recommend dinosaur books please"})
	require.NoError(t, err)
	assert.True(t, res.NoResult)
}
