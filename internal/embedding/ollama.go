// Package embedding turns text into fixed-length vectors by calling an
// Ollama-compatible HTTP endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL   = "http://localhost:11434/api/embed"
	defaultModel     = "nomic-embed-text"
	defaultDimension = 768
)

// ErrUnavailable marks the embedding endpoint as unreachable or its
// response as unusable. Write paths treat this as non-fatal (the record is
// stored without an embedding); search paths fall back to lexical matching.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Client calls an Ollama-compatible embedding endpoint. It holds no state
// beyond the reusable HTTP client and never retries: retry policy belongs
// to the caller, who knows whether latency or durability matters more.
type Client struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the embedding endpoint URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithDimension sets the expected vector length.
func WithDimension(dim int) Option {
	return func(c *Client) {
		if dim > 0 {
			c.dim = dim
		}
	}
}

// WithHTTPClient overrides the HTTP client (test hook).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates an embedding client. Defaults to localhost:11434 with
// nomic-embed-text at 768 dimensions.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		dim:     defaultDimension,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimension returns the configured vector length.
func (c *Client) Dimension() int { return c.dim }

// embedRequest is the /api/embed request body.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the /api/embed response body.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the vector for text. Empty text is a no-embedding result,
// not an error, and does not touch the network.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: endpoint returned %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var embedResp embedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if len(embedResp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrUnavailable)
	}

	vec := embedResp.Embeddings[0]
	if len(vec) != c.dim {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrUnavailable, len(vec), c.dim)
	}
	return vec, nil
}
