// Package serpapi provides a client for the SerpAPI web search service.
package serpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/udaysk3/smart-research-assistant/internal/resilience"
)

const defaultBaseURL = "https://serpapi.com"

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is a single organic search result.
type Result struct {
	Title         string `json:"title"`
	Link          string `json:"link"`
	Snippet       string `json:"snippet"`
	DisplayedLink string `json:"displayed_link"`
	Position      int    `json:"position"`
}

type searchResponse struct {
	OrganicResults []Result `json:"organic_results"`
	Error          string   `json:"error"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithEngine overrides the default search engine.
func WithEngine(engine string) Option {
	return func(c *httpClient) {
		c.engine = engine
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	engine  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a SerpAPI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		engine:  "google",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "serpapi: rate limit wait")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("engine", c.engine)
	params.Set("api_key", c.apiKey)
	if limit > 0 {
		params.Set("num", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("serpapi: status %d: %s", resp.StatusCode, truncate(string(body), 200))
		// Rate limits and server-side errors are retryable; classify them so
		// the caller's retry policy fires.
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "serpapi: decode response")
	}
	if parsed.Error != "" {
		return nil, eris.Errorf("serpapi: %s", parsed.Error)
	}

	results := parsed.OrganicResults
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
