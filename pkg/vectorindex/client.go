// Package vectorindex provides a client for the per-user document
// embedding/similarity search service. The index itself is an external
// capability; this client only queries it.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client queries the document similarity index.
type Client interface {
	// Query returns the chunks most similar to the query text, scoped to
	// a single user's document collection.
	Query(ctx context.Context, req QueryRequest) ([]Chunk, error)
}

// QueryRequest scopes a similarity search. UserID is mandatory: the index
// is partitioned per user and a query without a user is rejected.
type QueryRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
}

// Chunk is one retrieved document fragment.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	ChunkID    string    `json:"chunk_id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	IndexedAt  time.Time `json:"indexed_at"`
}

type queryResponse struct {
	Chunks []Chunk `json:"chunks"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a vector index client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Query(ctx context.Context, req QueryRequest) ([]Chunk, error) {
	if req.UserID == "" {
		return nil, eris.New("vectorindex: user id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: execute request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("vectorindex: status %d", resp.StatusCode)
	}

	var parsed queryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, eris.Wrap(err, "vectorindex: decode response")
	}
	return parsed.Chunks, nil
}
