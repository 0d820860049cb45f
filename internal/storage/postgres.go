package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/fnord"
)

// Embedder turns text into a fixed-length vector. Implemented by
// embedding.Client; nil vectors mean "no embedding" and are not an error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Advisory lock key serializing id assignment across concurrent creates.
const sequencerLockKey = 0x464E4F52 // "FNOR"

// Cosine distance cap for vector search results; anything farther is
// considered unrelated to the query.
const maxCosineDistance = 0.5

// PostgresStore is the networked backend. It carries a pgvector column and
// computes embeddings on write, best-effort: if the provider is down the
// record is stored without one.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	chance   Chance
	dim      int
	log      *logrus.Logger
}

// NewPostgresStore connects to the database at url and ensures the schema,
// the vector column of the configured dimension, and the cosine index.
func NewPostgresStore(ctx context.Context, url string, dim int, embedder Embedder, chance Chance, log *logrus.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s := &PostgresStore{pool: pool, embedder: embedder, chance: chance, dim: dim, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	log.Debug("postgres store opened")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS fnords (
			id BIGINT PRIMARY KEY,
			"when" TIMESTAMPTZ NOT NULL,
			where_place_name TEXT,
			source TEXT NOT NULL,
			summary TEXT NOT NULL,
			notes JSONB,
			logical_fallacies JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		fmt.Sprintf("ALTER TABLE fnords ADD COLUMN IF NOT EXISTS embedding vector(%d)", s.dim),
		"CREATE INDEX IF NOT EXISTS idx_fnords_embedding ON fnords USING ivfflat (embedding vector_cosine_ops)",
		`CREATE INDEX IF NOT EXISTS idx_fnords_when ON fnords("when")`,
		"CREATE INDEX IF NOT EXISTS idx_fnords_source ON fnords(source)",
		`CREATE TABLE IF NOT EXISTS fnord_seq (
			k SMALLINT PRIMARY KEY CHECK (k = 1),
			last_id BIGINT NOT NULL
		)`,
		`INSERT INTO fnord_seq (k, last_id)
			SELECT 1, COALESCE(MAX(id), 0) FROM fnords
			ON CONFLICT (k) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// embed obtains a vector for the record, retrying once. Failure is
// non-fatal on the write path: it logs a warning and returns nil.
func (s *PostgresStore) embed(ctx context.Context, rec *fnord.Sighting) []float32 {
	if s.embedder == nil {
		return nil
	}
	text := rec.EmbeddingText()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		vec, err = s.embedder.Embed(ctx, text)
	}
	if err != nil {
		s.log.WithError(err).Warn("embedding unavailable, storing fnord without one")
		return nil
	}
	return vec
}

// Create validates, embeds (best-effort) and persists the sighting under
// the next identifier. Id assignment runs under an advisory transaction
// lock so concurrent creates never observe the same maximum.
func (s *PostgresStore) Create(ctx context.Context, rec *fnord.Sighting) (*fnord.Sighting, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	vec := s.embed(ctx, rec)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", sequencerLockKey); err != nil {
		return nil, err
	}

	// The counter survives deletion of the newest record, so retired ids
	// are never handed out again.
	var lastID int64
	if err := tx.QueryRow(ctx, "SELECT last_id FROM fnord_seq WHERE k = 1").Scan(&lastID); err != nil {
		return nil, err
	}

	id := lastID + 1
	if gap := s.chance.Gap(); gap > 0 {
		id += gap
		s.log.WithFields(logrus.Fields{"gap": gap, "id": id}).Info("chaos gap in id sequence")
	}

	if _, err := tx.Exec(ctx, "UPDATE fnord_seq SET last_id = $1 WHERE k = 1", id); err != nil {
		return nil, err
	}

	stored, err := s.insert(ctx, tx, id, rec, vec)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.WithField("id", stored.ID).Debug("fnord created")
	return stored, nil
}

// CreateWithID persists a sighting under its preset identifier. Reserved
// for migration; ordinary callers go through Create.
func (s *PostgresStore) CreateWithID(ctx context.Context, rec *fnord.Sighting) (*fnord.Sighting, error) {
	if rec.ID <= 0 {
		return nil, &fnord.ValidationError{Field: "id", Reason: "must be a positive identifier"}
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	vec := rec.Embedding
	if vec == nil {
		vec = s.embed(ctx, rec)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", sequencerLockKey); err != nil {
		return nil, err
	}

	stored, err := s.insert(ctx, tx, rec.ID, rec, vec)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "UPDATE fnord_seq SET last_id = GREATEST(last_id, $1) WHERE k = 1", rec.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PostgresStore) insert(ctx context.Context, tx pgx.Tx, id int64, rec *fnord.Sighting, vec []float32) (*fnord.Sighting, error) {
	now := time.Now().UTC()

	var emb any
	if vec != nil {
		v := pgvector.NewVector(vec)
		emb = v
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO fnords (id, "when", where_place_name, source, summary, notes, logical_fallacies, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, rec.When, textOrNil(rec.WherePlaceName), rec.Source, rec.Summary, rec.Notes, rec.LogicalFallacies, emb, now, now)
	if err != nil {
		if isPGUniqueViolation(err) {
			return nil, fmt.Errorf("%w: id %d already assigned", ErrConflict, id)
		}
		return nil, err
	}

	out := *rec
	out.ID = id
	out.Embedding = vec
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

// Get returns the sighting with the given id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*fnord.Sighting, error) {
	row := s.pool.QueryRow(ctx, selectCols+" FROM fnords WHERE id = $1", id)
	return scanPGSighting(row)
}

// Update applies a partial update under a row lock. When any embedded text
// field changed, the embedding is regenerated with the same degrade-to-
// absent policy as Create.
func (s *PostgresStore) Update(ctx context.Context, id int64, u fnord.Update) (*fnord.Sighting, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, selectCols+" FROM fnords WHERE id = $1 FOR UPDATE", id)
	rec, err := scanPGSighting(row)
	if err != nil {
		return nil, err
	}

	textChanged := rec.Apply(u)
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if textChanged || rec.Embedding == nil {
		rec.Embedding = s.embed(ctx, rec)
	}

	var emb any
	if rec.Embedding != nil {
		v := pgvector.NewVector(rec.Embedding)
		emb = v
	}
	rec.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE fnords
		SET "when" = $1, where_place_name = $2, source = $3, summary = $4,
			notes = $5, logical_fallacies = $6, embedding = $7, updated_at = $8
		WHERE id = $9
	`, rec.When, textOrNil(rec.WherePlaceName), rec.Source, rec.Summary, rec.Notes, rec.LogicalFallacies, emb, rec.UpdatedAt, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.WithField("id", id).Debug("fnord updated")
	return rec, nil
}

// Delete permanently removes the sighting; its id is never reissued.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM fnords WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.log.WithField("id", id).Debug("fnord deleted")
	return nil
}

// List returns sightings ordered by id ascending.
func (s *PostgresStore) List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error) {
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}
	rows, err := s.pool.Query(ctx, selectCols+" FROM fnords ORDER BY id ASC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGSightings(rows)
}

// LexicalSearch matches the query as a case-insensitive substring of
// summary, source or where_place_name, most recent id first.
func (s *PostgresStore) LexicalSearch(ctx context.Context, query string, offset, limit int) ([]*fnord.Sighting, int64, error) {
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}
	q := strings.ToLower(query)

	const filter = `
		position($1 in lower(summary)) > 0
		OR position($1 in lower(source)) > 0
		OR position($1 in lower(COALESCE(where_place_name, ''))) > 0
	`

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM fnords WHERE "+filter, q).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		selectCols+" FROM fnords WHERE "+filter+" ORDER BY id DESC LIMIT $2 OFFSET $3",
		q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs, err := collectPGSightings(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// VectorSearch ranks records with embeddings by ascending cosine distance
// to the query vector, ties broken by id descending. Records beyond the
// distance cap are dropped.
func (s *PostgresStore) VectorSearch(ctx context.Context, vec []float32, offset, limit int) ([]*fnord.Sighting, int64, error) {
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}
	qv := pgvector.NewVector(vec)

	var total int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM fnords WHERE embedding IS NOT NULL AND embedding <=> $1 <= $2",
		qv, maxCosineDistance).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, selectCols+`
		FROM fnords
		WHERE embedding IS NOT NULL AND embedding <=> $1 <= $2
		ORDER BY embedding <=> $1 ASC, id DESC
		LIMIT $3 OFFSET $4
	`, qv, maxCosineDistance, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs, err := collectPGSightings(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// Count returns the total number of live sightings.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM fnords").Scan(&n)
	return n, err
}

// --- row helpers ---

const selectCols = `SELECT id, "when", where_place_name, source, summary, notes, logical_fallacies, embedding, created_at, updated_at`

func scanPGSighting(row pgx.Row) (*fnord.Sighting, error) {
	var rec fnord.Sighting
	var where *string
	var emb *pgvector.Vector

	err := row.Scan(&rec.ID, &rec.When, &where, &rec.Source, &rec.Summary,
		&rec.Notes, &rec.LogicalFallacies, &emb, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if where != nil {
		rec.WherePlaceName = *where
	}
	if emb != nil {
		rec.Embedding = emb.Slice()
	}
	rec.When = rec.When.UTC()
	return &rec, nil
}

func collectPGSightings(rows pgx.Rows) ([]*fnord.Sighting, error) {
	recs := []*fnord.Sighting{}
	for rows.Next() {
		rec, err := scanPGSighting(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
