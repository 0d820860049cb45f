package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/fnord"
)

// SQLiteStore is the embedded single-file backend. It has no vector
// column; records it holds are never part of semantic ranking.
type SQLiteStore struct {
	db     *sql.DB
	chance Chance
	log    *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, chance Chance, log *logrus.Logger) (*SQLiteStore, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s := &SQLiteStore{db: db, chance: chance, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	log.WithField("path", dbPath).Debug("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS fnords (
			id INTEGER PRIMARY KEY,
			"when" DATETIME NOT NULL,
			where_place_name TEXT,
			source TEXT NOT NULL,
			summary TEXT NOT NULL,
			notes TEXT,
			logical_fallacies TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_fnords_when ON fnords("when");
		CREATE INDEX IF NOT EXISTS idx_fnords_source ON fnords(source);

		CREATE TABLE IF NOT EXISTS fnord_seq (
			k INTEGER PRIMARY KEY CHECK (k = 1),
			last_id INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO fnord_seq (k, last_id)
			SELECT 1, COALESCE(MAX(id), 0) FROM fnords;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create validates the sighting, assigns the next identifier (possibly
// skipping ahead, see Chance) and persists it. The read-max/assign pair
// runs inside an immediate transaction so concurrent creates cannot
// observe the same maximum.
func (s *SQLiteStore) Create(ctx context.Context, rec *fnord.Sighting) (*fnord.Sighting, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	// The counter survives deletion of the newest record, so retired ids
	// are never handed out again.
	var lastID int64
	if err := tx.QueryRowContext(ctx, "SELECT last_id FROM fnord_seq WHERE k = 1").Scan(&lastID); err != nil {
		return nil, err
	}

	id := lastID + 1
	if gap := s.chance.Gap(); gap > 0 {
		id += gap
		s.log.WithFields(logrus.Fields{"gap": gap, "id": id}).Info("chaos gap in id sequence")
	}

	if _, err := tx.ExecContext(ctx, "UPDATE fnord_seq SET last_id = ? WHERE k = 1", id); err != nil {
		return nil, err
	}

	stored, err := s.insert(ctx, tx, id, rec)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.WithField("id", stored.ID).Debug("fnord created")
	return stored, nil
}

// CreateWithID persists a sighting under its preset identifier. Reserved
// for migration; ordinary callers go through Create.
func (s *SQLiteStore) CreateWithID(ctx context.Context, rec *fnord.Sighting) (*fnord.Sighting, error) {
	if rec.ID <= 0 {
		return nil, &fnord.ValidationError{Field: "id", Reason: "must be a positive identifier"}
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	stored, err := s.insert(ctx, tx, rec.ID, rec)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE fnord_seq SET last_id = MAX(last_id, ?) WHERE k = 1", rec.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, id int64, rec *fnord.Sighting) (*fnord.Sighting, error) {
	now := time.Now().UTC()
	notes, fallacies, err := marshalOptional(rec)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fnords (id, "when", where_place_name, source, summary, notes, logical_fallacies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.When, nullString(rec.WherePlaceName), rec.Source, rec.Summary, notes, fallacies, now, now)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, fmt.Errorf("%w: id %d already assigned", ErrConflict, id)
		}
		return nil, err
	}

	out := *rec
	out.ID = id
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

// Get returns the sighting with the given id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*fnord.Sighting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, "when", where_place_name, source, summary, notes, logical_fallacies, created_at, updated_at
		FROM fnords WHERE id = ?
	`, id)
	return scanSighting(row)
}

// Update applies a partial update inside a transaction so two concurrent
// updates to the same id serialize cleanly.
func (s *SQLiteStore) Update(ctx context.Context, id int64, u fnord.Update) (*fnord.Sighting, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, "when", where_place_name, source, summary, notes, logical_fallacies, created_at, updated_at
		FROM fnords WHERE id = ?
	`, id)
	rec, err := scanSighting(row)
	if err != nil {
		return nil, err
	}

	rec.Apply(u)
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	notes, fallacies, err := marshalOptional(rec)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE fnords
		SET "when" = ?, where_place_name = ?, source = ?, summary = ?, notes = ?, logical_fallacies = ?, updated_at = ?
		WHERE id = ?
	`, rec.When, nullString(rec.WherePlaceName), rec.Source, rec.Summary, notes, fallacies, rec.UpdatedAt, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.WithField("id", id).Debug("fnord updated")
	return rec, nil
}

// Delete permanently removes the sighting. The id is never reissued
// because the sequencer only moves forward from the historical maximum.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM fnords WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.log.WithField("id", id).Debug("fnord deleted")
	return nil
}

// List returns sightings ordered by id ascending. An offset past the end
// yields an empty slice.
func (s *SQLiteStore) List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error) {
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, "when", where_place_name, source, summary, notes, logical_fallacies, created_at, updated_at
		FROM fnords ORDER BY id ASC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSightings(rows)
}

// LexicalSearch performs case-insensitive substring matching against
// summary, source and where_place_name, most recent id first.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, query string, offset, limit int) ([]*fnord.Sighting, int64, error) {
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}
	q := strings.ToLower(query)

	const filter = `
		instr(lower(summary), ?) > 0
		OR instr(lower(source), ?) > 0
		OR instr(lower(COALESCE(where_place_name, '')), ?) > 0
	`

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fnords WHERE "+filter, q, q, q).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, "when", where_place_name, source, summary, notes, logical_fallacies, created_at, updated_at
		FROM fnords WHERE `+filter+`
		ORDER BY id DESC LIMIT ? OFFSET ?
	`, q, q, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs, err := collectSightings(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// Count returns the total number of live sightings.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fnords").Scan(&n)
	return n, err
}

// --- row helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSighting(row rowScanner) (*fnord.Sighting, error) {
	var rec fnord.Sighting
	var where, notes, fallacies sql.NullString

	err := row.Scan(&rec.ID, &rec.When, &where, &rec.Source, &rec.Summary, &notes, &fallacies, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec.WherePlaceName = where.String
	if notes.Valid && notes.String != "" {
		json.Unmarshal([]byte(notes.String), &rec.Notes)
	}
	if fallacies.Valid && fallacies.String != "" {
		json.Unmarshal([]byte(fallacies.String), &rec.LogicalFallacies)
	}
	rec.When = rec.When.UTC()
	return &rec, nil
}

func collectSightings(rows *sql.Rows) ([]*fnord.Sighting, error) {
	recs := []*fnord.Sighting{}
	for rows.Next() {
		rec, err := scanSighting(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func marshalOptional(rec *fnord.Sighting) (notes, fallacies sql.NullString, err error) {
	if rec.Notes != nil {
		b, merr := json.Marshal(rec.Notes)
		if merr != nil {
			return notes, fallacies, &fnord.ValidationError{Field: "notes", Reason: "must be JSON-serializable"}
		}
		notes = sql.NullString{String: string(b), Valid: true}
	}
	if rec.LogicalFallacies != nil {
		b, merr := json.Marshal(rec.LogicalFallacies)
		if merr != nil {
			return notes, fallacies, &fnord.ValidationError{Field: "logical_fallacies", Reason: "must be JSON-serializable"}
		}
		fallacies = sql.NullString{String: string(b), Valid: true}
	}
	return notes, fallacies, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isSQLiteConstraint(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}
