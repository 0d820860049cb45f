// Package fnord defines the sighting record and its validation rules.
package fnord

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPageSize is the page size used when a caller does not override it.
const DefaultPageSize = 23

// Sighting is a single recorded observation.
//
// Embedding is derived from the text fields and only populated on backends
// that support vector search. A nil Embedding is a valid state: the record
// is simply excluded from semantic ranking.
type Sighting struct {
	ID               int64          `json:"id"`
	When             time.Time      `json:"when"`
	WherePlaceName   string         `json:"where_place_name,omitempty"`
	Source           string         `json:"source"`
	Summary          string         `json:"summary"`
	Notes            map[string]any `json:"notes,omitempty"`
	LogicalFallacies []string       `json:"logical_fallacies,omitempty"`
	Embedding        []float32      `json:"-"`
	CreatedAt        time.Time      `json:"created_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// Update describes a partial modification of a sighting.
// Nil fields are left unchanged; a pointer to the zero value clears the field
// (only valid for the optional fields).
type Update struct {
	When             *time.Time      `json:"when,omitempty"`
	WherePlaceName   *string         `json:"where_place_name,omitempty"`
	Source           *string         `json:"source,omitempty"`
	Summary          *string         `json:"summary,omitempty"`
	Notes            *map[string]any `json:"notes,omitempty"`
	LogicalFallacies *[]string       `json:"logical_fallacies,omitempty"`
}

// ValidationError reports a field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sighting: %s: %s", e.Field, e.Reason)
}

// Validate checks that all required fields are present and well-formed.
// It returns a *ValidationError naming the first offending field.
func (s *Sighting) Validate() error {
	if s.When.IsZero() {
		return &ValidationError{Field: "when", Reason: "this field is required"}
	}
	if s.Source == "" {
		return &ValidationError{Field: "source", Reason: "this field is required"}
	}
	if s.Summary == "" {
		return &ValidationError{Field: "summary", Reason: "this field is required"}
	}
	if s.Notes != nil {
		if _, err := json.Marshal(s.Notes); err != nil {
			return &ValidationError{Field: "notes", Reason: "must be JSON-serializable"}
		}
	}
	return nil
}

// Normalize converts the timestamp to UTC so every backend stores the same
// canonical representation.
func (s *Sighting) Normalize() {
	if !s.When.IsZero() {
		s.When = s.When.UTC()
	}
}

// EmbeddingText returns the text handed to the embedding provider:
// the summary and source, plus the place name when present.
func (s *Sighting) EmbeddingText() string {
	text := s.Summary + " " + s.Source
	if s.WherePlaceName != "" {
		text += " " + s.WherePlaceName
	}
	return text
}

// Apply merges an update into the sighting and reports whether any of the
// embedded text fields changed (which requires recomputing the embedding).
func (s *Sighting) Apply(u Update) (textChanged bool) {
	if u.When != nil {
		s.When = *u.When
	}
	if u.WherePlaceName != nil {
		if *u.WherePlaceName != s.WherePlaceName {
			textChanged = true
		}
		s.WherePlaceName = *u.WherePlaceName
	}
	if u.Source != nil {
		if *u.Source != s.Source {
			textChanged = true
		}
		s.Source = *u.Source
	}
	if u.Summary != nil {
		if *u.Summary != s.Summary {
			textChanged = true
		}
		s.Summary = *u.Summary
	}
	if u.Notes != nil {
		s.Notes = *u.Notes
	}
	if u.LogicalFallacies != nil {
		s.LogicalFallacies = *u.LogicalFallacies
	}
	return textChanged
}

// ParseWhen parses an observation timestamp from its wire form. RFC3339
// first, then a couple of forgiving fallbacks for hand-typed input.
func ParseWhen(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "when", Reason: "must be an ISO8601 timestamp (e.g. 2026-01-07T14:23:00Z)"}
}

func (s *Sighting) String() string {
	where := s.WherePlaceName
	if where == "" {
		where = "unknown location"
	}
	return fmt.Sprintf("[%s] %s: %s @ %s", s.When.Format(time.RFC3339), s.Source, s.Summary, where)
}
