package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ananasregina/fnord/internal/fnord"
	"github.com/ananasregina/fnord/internal/storage"
)

// Common test errors
var (
	ErrMockEmbedding = errors.New("mock embedding error")
	ErrMockStorage   = errors.New("mock storage error")
)

// MockEmbedder implements storage.Embedder for testing.
type MockEmbedder struct {
	mu          sync.Mutex
	EmbedFunc   func(ctx context.Context, text string) ([]float32, error)
	CallCount   int
	LastText    string
	Fail        bool
	FixedVector []float32
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{FixedVector: make([]float32, 768)}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastText = text

	if m.Fail {
		return nil, ErrMockEmbedding
	}
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	if text == "" {
		return nil, nil
	}
	return m.FixedVector, nil
}

// MockStore is an in-memory storage.Store without vector support.
type MockStore struct {
	mu      sync.Mutex
	records map[int64]*fnord.Sighting
	lastID  int64

	LexicalCalls int
	ListCalls    int
	FailCreate   bool
}

func NewMockStore() *MockStore {
	return &MockStore{records: make(map[int64]*fnord.Sighting)}
}

func (m *MockStore) Create(ctx context.Context, s *fnord.Sighting) (*fnord.Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		return nil, ErrMockStorage
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	m.lastID++
	out := *s
	out.ID = m.lastID
	m.records[out.ID] = &out
	return &out, nil
}

func (m *MockStore) CreateWithID(ctx context.Context, s *fnord.Sighting) (*fnord.Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[s.ID]; exists {
		return nil, storage.ErrConflict
	}
	out := *s
	m.records[out.ID] = &out
	if out.ID > m.lastID {
		m.lastID = out.ID
	}
	return &out, nil
}

func (m *MockStore) Get(ctx context.Context, id int64) (*fnord.Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MockStore) Update(ctx context.Context, id int64, u fnord.Update) (*fnord.Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec.Apply(u)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	out := *rec
	return &out, nil
}

func (m *MockStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MockStore) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockStore) List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}

	ids := m.sortedIDs()
	out := []*fnord.Sighting{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		rec := *m.records[ids[i]]
		out = append(out, &rec)
	}
	return out, nil
}

func (m *MockStore) LexicalSearch(ctx context.Context, query string, offset, limit int) ([]*fnord.Sighting, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LexicalCalls++
	q := strings.ToLower(query)

	ids := m.sortedIDs()
	matched := []*fnord.Sighting{}
	for i := len(ids) - 1; i >= 0; i-- { // id descending
		rec := m.records[ids[i]]
		hay := strings.ToLower(rec.Summary + " " + rec.Source + " " + rec.WherePlaceName)
		if strings.Contains(hay, q) {
			out := *rec
			matched = append(matched, &out)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*fnord.Sighting{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *MockStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *MockStore) Close() error { return nil }

// MockVectorStore adds vector search on top of MockStore, mimicking the
// Postgres backend: Create computes an embedding through its Embedder
// (best-effort) and VectorSearch returns only records that have one.
type MockVectorStore struct {
	*MockStore
	Embedder    storage.Embedder
	VectorCalls int
	LastVector  []float32
}

func NewMockVectorStore(embedder storage.Embedder) *MockVectorStore {
	return &MockVectorStore{MockStore: NewMockStore(), Embedder: embedder}
}

func (m *MockVectorStore) Create(ctx context.Context, s *fnord.Sighting) (*fnord.Sighting, error) {
	if m.Embedder != nil {
		if vec, err := m.Embedder.Embed(ctx, s.EmbeddingText()); err == nil {
			s.Embedding = vec
		}
	}
	return m.MockStore.Create(ctx, s)
}

func (m *MockVectorStore) VectorSearch(ctx context.Context, vec []float32, offset, limit int) ([]*fnord.Sighting, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VectorCalls++
	m.LastVector = vec

	matched := []*fnord.Sighting{}
	ids := m.sortedIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		rec := m.records[ids[i]]
		if rec.Embedding != nil {
			out := *rec
			matched = append(matched, &out)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*fnord.Sighting{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}
