package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransientError_WrapsCause(t *testing.T) {
	cause := errors.New("search provider: status 429")
	err := NewTransientError(cause, 429)

	assert.EqualError(t, err, "search provider: status 429")
	assert.Equal(t, 429, err.StatusCode)
	assert.ErrorIs(t, err, cause)
}

func TestIsTransient_Nil(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_PlainError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("invalid api key")))
}

func TestIsTransient_TransientErrorAnywhereInChain(t *testing.T) {
	inner := NewTransientError(errors.New("feed fetch: status 503"), 503)
	wrapped := fmt.Errorf("fetching feed batch: %w", inner)

	assert.True(t, IsTransient(wrapped))
}

type timeoutError struct{ timeout bool }

func (e *timeoutError) Error() string   { return "dial tcp: operation timed out" }
func (e *timeoutError) Timeout() bool   { return e.timeout }
func (e *timeoutError) Temporary() bool { return false }

func TestIsTransient_NetTimeout(t *testing.T) {
	assert.True(t, IsTransient(&timeoutError{timeout: true}))
}

func TestIsTransient_ConnectionErrors(t *testing.T) {
	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.ECONNABORTED,
	} {
		err := fmt.Errorf("dial tcp 10.0.0.1:5432: %w", errno)
		assert.True(t, IsTransient(err), "errno %v", errno)
	}
}

func TestIsTransient_MessageHeuristics(t *testing.T) {
	transient := []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"lookup api.serpapi.com: no such host",
		"net/http: TLS handshake timeout",
		"Get \"https://example.com/feed\": i/o timeout",
	}
	for _, msg := range transient {
		assert.True(t, IsTransient(errors.New(msg)), "message %q", msg)
	}

	require.False(t, IsTransient(errors.New("feed returned malformed xml")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
