// Package core is the retrieval engine: CRUD over the configured backend
// plus the search orchestrator that picks between semantic and lexical
// ranking.
package core

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/fnord"
	"github.com/ananasregina/fnord/internal/storage"
)

// Engine is the public surface consumed by the CLI, web and MCP layers.
type Engine struct {
	store    storage.Store
	embedder storage.Embedder
	log      *logrus.Logger
}

// New creates an engine over the given backend. embedder may be nil when
// no embedding endpoint is configured; search then always runs lexically.
func New(store storage.Store, embedder storage.Embedder, log *logrus.Logger) *Engine {
	return &Engine{store: store, embedder: embedder, log: log}
}

// Close releases the backend connection.
func (e *Engine) Close() error {
	return e.store.Close()
}

// WriteResult is the outcome of a create or update. EmbeddingSkipped is
// the non-fatal warning that the backend supports embeddings but the
// provider was unreachable, so the record was stored without one.
type WriteResult struct {
	Sighting         *fnord.Sighting `json:"sighting"`
	EmbeddingSkipped bool            `json:"embedding_skipped,omitempty"`
}

// SearchResult is an ordered page of sightings plus a total estimate.
// Semantic reports which ranking produced the page.
type SearchResult struct {
	Sightings []*fnord.Sighting `json:"sightings"`
	Total     int64             `json:"total"`
	Semantic  bool              `json:"semantic"`
}

// Create validates and persists a new sighting, assigning its identifier.
func (e *Engine) Create(ctx context.Context, s *fnord.Sighting) (*WriteResult, error) {
	stored, err := e.store.Create(ctx, s)
	if err != nil {
		return nil, err
	}
	return e.writeResult(stored), nil
}

// Get returns the sighting with the given id.
func (e *Engine) Get(ctx context.Context, id int64) (*fnord.Sighting, error) {
	return e.store.Get(ctx, id)
}

// Update applies a partial update, regenerating the embedding on backends
// that carry one.
func (e *Engine) Update(ctx context.Context, id int64, u fnord.Update) (*WriteResult, error) {
	stored, err := e.store.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	return e.writeResult(stored), nil
}

// Delete permanently removes a sighting; its id is retired forever.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	return e.store.Delete(ctx, id)
}

// List returns sightings in id order. limit <= 0 uses the default page
// size of 23.
func (e *Engine) List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error) {
	return e.store.List(ctx, offset, limit)
}

// Count returns the number of stored sightings.
func (e *Engine) Count(ctx context.Context) (int64, error) {
	return e.store.Count(ctx)
}

// Search ranks sightings against the query.
//
// An empty query is not a search: it degrades to List in id-ascending
// order, since there is nothing to rank against. Otherwise the semantic
// path is taken when the backend has a vector index and the query embeds
// successfully; any embedding failure degrades to lexical substring
// matching rather than an error. Semantic results are never blended with
// lexical ones.
func (e *Engine) Search(ctx context.Context, query string, offset, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, &fnord.ValidationError{Field: "limit", Reason: "must be positive"}
	}
	if offset < 0 {
		return nil, &fnord.ValidationError{Field: "offset", Reason: "must not be negative"}
	}

	if query == "" {
		recs, err := e.store.List(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		total, err := e.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		return &SearchResult{Sightings: recs, Total: total}, nil
	}

	if vs, ok := e.store.(storage.VectorSearcher); ok && e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			// Degrading, not fatal: fall through to lexical. No retry on
			// the search path to keep latency bounded.
			e.log.WithError(err).Warn("query embedding failed, falling back to lexical search")
		} else if vec != nil {
			recs, total, err := vs.VectorSearch(ctx, vec, offset, limit)
			if err != nil {
				return nil, err
			}
			return &SearchResult{Sightings: recs, Total: total, Semantic: true}, nil
		}
	}

	recs, total, err := e.store.LexicalSearch(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Sightings: recs, Total: total}, nil
}

func (e *Engine) writeResult(stored *fnord.Sighting) *WriteResult {
	_, vectorBackend := e.store.(storage.VectorSearcher)
	skipped := vectorBackend && stored.Embedding == nil
	if skipped {
		e.log.WithField("id", stored.ID).Warn("fnord stored without embedding")
	}
	return &WriteResult{Sighting: stored, EmbeddingSkipped: skipped}
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var verr *fnord.ValidationError
	return errors.As(err, &verr)
}

// IsConflict reports whether err is an identifier collision.
func IsConflict(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}
