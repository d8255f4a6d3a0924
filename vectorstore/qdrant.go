// Package vectorstore provides a Qdrant-backed semantic index the catalog
// search tool can use to pre-rank books for free-text queries.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/bookseekers/bookflow/core"
)

// Embedder turns text into an embedding vector. reasoner/openai provides
// an implementation backed by the embeddings API.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QdrantOptions configures the index.
type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Logger     core.Logger
}

// QdrantIndex searches a Qdrant collection whose points carry a "book_id"
// payload field referencing catalog entries. It satisfies the search
// tool's VectorIndex contract.
type QdrantIndex struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
	logger     core.Logger
}

// NewQdrantIndex connects to Qdrant and wraps it with the given embedder.
func NewQdrantIndex(embedder Embedder, optFns ...func(o *QdrantOptions)) (*QdrantIndex, error) {
	opts := QdrantOptions{
		Host:       "localhost",
		Port:       6334,
		Collection: "books",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		embedder:   embedder,
		collection: opts.Collection,
		logger:     opts.Logger,
	}, nil
}

// Search embeds the query and returns the IDs of the closest catalog
// entries, best first.
func (q *QdrantIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	vec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limitU := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limitU,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		if payload == nil {
			continue
		}
		if v, ok := payload["book_id"]; ok {
			if s := v.GetStringValue(); s != "" {
				ids = append(ids, s)
			}
		}
	}
	if q.logger != nil {
		q.logger.Debug("semantic search finished", "collection", q.collection, "hits", len(ids))
	}
	return ids, nil
}

// Close releases the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
