// Package storage persists fnord sightings. Two backends share one
// contract: an embedded SQLite file and a networked Postgres database
// with pgvector. Only the Postgres backend supports vector search.
package storage

import (
	"context"
	"errors"

	"github.com/ananasregina/fnord/internal/fnord"
)

var (
	// ErrNotFound is returned when no live record has the requested id.
	ErrNotFound = errors.New("fnord not found")

	// ErrBackendUnavailable is returned when the configured backend cannot
	// be reached or opened. Retryable infrastructure failure.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrConflict is returned when an identifier collision is detected,
	// e.g. two concurrent creates racing for the same id or a migration
	// write against an occupied id.
	ErrConflict = errors.New("identifier conflict")
)

// Store is the contract shared by both backends.
//
// Create assigns an identifier through the sequencer; CreateWithID is the
// identifier-preserving variant reserved for migration and refuses records
// without a preset id.
type Store interface {
	Create(ctx context.Context, s *fnord.Sighting) (*fnord.Sighting, error)
	CreateWithID(ctx context.Context, s *fnord.Sighting) (*fnord.Sighting, error)
	Get(ctx context.Context, id int64) (*fnord.Sighting, error)
	Update(ctx context.Context, id int64, u fnord.Update) (*fnord.Sighting, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error)
	LexicalSearch(ctx context.Context, query string, offset, limit int) ([]*fnord.Sighting, int64, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// VectorSearcher is implemented only by backends with a vector index.
// Results are ordered by ascending cosine distance to the query vector,
// ties broken by id descending, restricted to records with an embedding.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vec []float32, offset, limit int) ([]*fnord.Sighting, int64, error)
}
