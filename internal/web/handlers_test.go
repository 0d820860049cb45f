package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/core"
	"github.com/ananasregina/fnord/internal/fnord"
	"github.com/ananasregina/fnord/internal/storage"
)

// MockEngine implements Engine for handler tests.
type MockEngine struct {
	CreateFunc func(ctx context.Context, s *fnord.Sighting) (*core.WriteResult, error)
	GetFunc    func(ctx context.Context, id int64) (*fnord.Sighting, error)
	UpdateFunc func(ctx context.Context, id int64, u fnord.Update) (*core.WriteResult, error)
	DeleteFunc func(ctx context.Context, id int64) error
	ListFunc   func(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error)
	CountFunc  func(ctx context.Context) (int64, error)
	SearchFunc func(ctx context.Context, query string, offset, limit int) (*core.SearchResult, error)
}

func (m *MockEngine) Create(ctx context.Context, s *fnord.Sighting) (*core.WriteResult, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	out := *s
	out.ID = 23
	return &core.WriteResult{Sighting: &out}, nil
}

func (m *MockEngine) Get(ctx context.Context, id int64) (*fnord.Sighting, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

func (m *MockEngine) Update(ctx context.Context, id int64, u fnord.Update) (*core.WriteResult, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, u)
	}
	return nil, storage.ErrNotFound
}

func (m *MockEngine) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockEngine) List(ctx context.Context, offset, limit int) ([]*fnord.Sighting, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, offset, limit)
	}
	return []*fnord.Sighting{}, nil
}

func (m *MockEngine) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockEngine) Search(ctx context.Context, query string, offset, limit int) (*core.SearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, offset, limit)
	}
	return &core.SearchResult{Sightings: []*fnord.Sighting{}}, nil
}

func testServer(engine Engine) *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(engine, log)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandleCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		engine     *MockEngine
		wantStatus int
	}{
		{
			name: "Given valid body When creating Then 201",
			body: map[string]any{
				"when":    "2026-01-07T14:23:00Z",
				"source":  "News Article",
				"summary": "Found fnord hidden in tech news",
			},
			engine:     &MockEngine{},
			wantStatus: http.StatusCreated,
		},
		{
			name: "Given bad timestamp When creating Then 400",
			body: map[string]any{
				"when":    "sometime last week",
				"source":  "News Article",
				"summary": "vague fnord",
			},
			engine:     &MockEngine{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Given missing summary When creating Then 400",
			body: map[string]any{
				"when":   "2026-01-07T14:23:00Z",
				"source": "News Article",
			},
			engine: &MockEngine{
				CreateFunc: func(ctx context.Context, s *fnord.Sighting) (*core.WriteResult, error) {
					return nil, &fnord.ValidationError{Field: "summary", Reason: "this field is required"}
				},
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Given unreachable backend When creating Then 503",
			body: map[string]any{
				"when":    "2026-01-07T14:23:00Z",
				"source":  "News Article",
				"summary": "fnord",
			},
			engine: &MockEngine{
				CreateFunc: func(ctx context.Context, s *fnord.Sighting) (*core.WriteResult, error) {
					return nil, storage.ErrBackendUnavailable
				},
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testServer(tt.engine), http.MethodPost, "/api/fnords", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleCreateReportsEmbeddingWarning(t *testing.T) {
	engine := &MockEngine{
		CreateFunc: func(ctx context.Context, s *fnord.Sighting) (*core.WriteResult, error) {
			out := *s
			out.ID = 5
			return &core.WriteResult{Sighting: &out, EmbeddingSkipped: true}, nil
		},
	}

	w := doRequest(t, testServer(engine), http.MethodPost, "/api/fnords", map[string]any{
		"when":    "2026-01-07T14:23:00Z",
		"source":  "News Article",
		"summary": "fnord without a vector",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var res core.WriteResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !res.EmbeddingSkipped {
		t.Error("EmbeddingSkipped not surfaced to the caller")
	}
}

func TestHandleGet(t *testing.T) {
	engine := &MockEngine{
		GetFunc: func(ctx context.Context, id int64) (*fnord.Sighting, error) {
			if id != 7 {
				return nil, storage.ErrNotFound
			}
			return &fnord.Sighting{ID: 7, When: time.Now().UTC(), Source: "Walk", Summary: "fnord"}, nil
		},
	}
	s := testServer(engine)

	if w := doRequest(t, s, http.MethodGet, "/api/fnords/7", nil); w.Code != http.StatusOK {
		t.Errorf("GET existing: status = %d, want 200", w.Code)
	}
	if w := doRequest(t, s, http.MethodGet, "/api/fnords/8", nil); w.Code != http.StatusNotFound {
		t.Errorf("GET missing: status = %d, want 404", w.Code)
	}
	if w := doRequest(t, s, http.MethodGet, "/api/fnords/banana", nil); w.Code != http.StatusBadRequest {
		t.Errorf("GET bad id: status = %d, want 400", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	var gotQuery string
	var gotLimit int
	engine := &MockEngine{
		SearchFunc: func(ctx context.Context, query string, offset, limit int) (*core.SearchResult, error) {
			gotQuery, gotLimit = query, limit
			return &core.SearchResult{Sightings: []*fnord.Sighting{}, Total: 0}, nil
		},
	}

	w := doRequest(t, testServer(engine), http.MethodGet, "/api/search?q=Seattle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotQuery != "Seattle" {
		t.Errorf("query = %q, want Seattle", gotQuery)
	}
	if gotLimit != fnord.DefaultPageSize {
		t.Errorf("limit = %d, want default page size %d", gotLimit, fnord.DefaultPageSize)
	}
}

func TestHandleDeleteAndCount(t *testing.T) {
	deleted := map[int64]bool{}
	engine := &MockEngine{
		DeleteFunc: func(ctx context.Context, id int64) error {
			if deleted[id] {
				return storage.ErrNotFound
			}
			deleted[id] = true
			return nil
		},
		CountFunc: func(ctx context.Context) (int64, error) { return 23, nil },
	}
	s := testServer(engine)

	if w := doRequest(t, s, http.MethodDelete, "/api/fnords/3", nil); w.Code != http.StatusOK {
		t.Errorf("first delete: status = %d, want 200", w.Code)
	}
	if w := doRequest(t, s, http.MethodDelete, "/api/fnords/3", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}

	w := doRequest(t, s, http.MethodGet, "/api/count", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("count: status = %d, want 200", w.Code)
	}
	var body map[string]int64
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["count"] != 23 {
		t.Errorf("count = %d, want 23", body["count"])
	}
}
