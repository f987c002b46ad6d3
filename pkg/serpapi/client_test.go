package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaysk3/smart-research-assistant/internal/resilience"
)

func TestSearch_ParsesOrganicResults(t *testing.T) {
	var gotQuery, gotEngine, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotEngine = r.URL.Query().Get("engine")
		gotKey = r.URL.Query().Get("api_key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"organic_results": [
				{"title": "First", "link": "https://example.com/1", "snippet": "one", "position": 1},
				{"title": "Second", "link": "https://example.com/2", "snippet": "two", "position": 2}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "quantum computing", 5)
	require.NoError(t, err)

	assert.Equal(t, "quantum computing", gotQuery)
	assert.Equal(t, "google", gotEngine)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, results, 2)
	assert.Equal(t, "First", results[0].Title)
	assert.Equal(t, "https://example.com/2", results[1].Link)
}

func TestSearch_CapsAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"organic_results": [
			{"title": "a"}, {"title": "b"}, {"title": "c"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_APIErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error": "Invalid API key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	// Rate limits must be classified as retryable.
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_AuthErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.False(t, resilience.IsTransient(err))
}

func TestSearch_CustomEngine(t *testing.T) {
	var gotEngine string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEngine = r.URL.Query().Get("engine")
		w.Write([]byte(`{"organic_results": []}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithEngine("bing"))
	_, err := client.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, "bing", gotEngine)
}

func TestSearch_ContextCancelled(t *testing.T) {
	client := NewClient("k", WithBaseURL("http://127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "q", 5)
	assert.Error(t, err)
}
