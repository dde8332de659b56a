package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(RetryConfig{})
	netErr := &TransportError{URL: "http://x", Err: errors.New("connection reset")}

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 0, false},
		{"network failure", netErr, 0, true},
		{"wrapped network failure", fmt.Errorf("page 2: %w", netErr), 1, true},
		{"server error", &TransportError{URL: "http://x", StatusCode: http.StatusBadGateway}, 0, true},
		{"rate limited", &TransportError{URL: "http://x", StatusCode: http.StatusTooManyRequests}, 0, true},
		{"not found", &TransportError{URL: "http://x", StatusCode: http.StatusNotFound}, 0, false},
		{"attempts exhausted", netErr, 3, false},
		{"canceled", fmt.Errorf("%w", context.Canceled), 0, false},
		{"challenge failure", fmt.Errorf("%w: no token", ErrChallenge), 0, false},
		{"extraction failure", &ExtractionError{Field: "date", Err: errors.New("x")}, 0, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestExponentialRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	for attempt := 0; attempt < 6; attempt++ {
		got := p.Backoff(attempt)
		full := 100 * time.Millisecond << attempt
		if full > time.Second {
			full = time.Second
		}
		assert.GreaterOrEqual(t, got, full/2, "attempt %d", attempt)
		assert.LessOrEqual(t, got, full, "attempt %d", attempt)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	transport := &TransportError{URL: "http://x", StatusCode: 503}
	assert.ErrorIs(t, fmt.Errorf("wrap: %w", transport), ErrTransport)
	assert.Contains(t, transport.Error(), "status 503")

	cause := errors.New("missing .date")
	extraction := &ExtractionError{Page: 2, Index: 4, Field: "date", Err: cause}
	assert.ErrorIs(t, extraction, ErrExtraction)
	assert.ErrorIs(t, extraction, cause)
	assert.NotErrorIs(t, extraction, ErrTransport)
}
