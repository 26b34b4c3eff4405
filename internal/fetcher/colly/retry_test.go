package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// TestRetryPolicyShouldRetry covers the transient versus final classification.
func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(2)
	status := func(code int) error {
		return &catalog.TransportError{Address: "u", StatusCode: code, Err: errors.New(http.StatusText(code))}
	}
	dial := &catalog.TransportError{Address: "u", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}}

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil", err: nil, attempt: 1, want: false},
		{name: "503", err: status(503), attempt: 1, want: true},
		{name: "429", err: status(429), attempt: 1, want: true},
		{name: "404", err: status(404), attempt: 1, want: false},
		{name: "403", err: status(403), attempt: 1, want: false},
		{name: "dial failure", err: dial, attempt: 2, want: true},
		{name: "attempts exhausted", err: status(503), attempt: 3, want: false},
		{name: "canceled", err: &catalog.TransportError{Err: context.Canceled}, attempt: 1, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

// TestRetryPolicyBackoffCapped verifies jittered delays stay within the cap.
func TestRetryPolicyBackoffCapped(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicyWithDelays(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.LessOrEqual(t, d, 400*time.Millisecond)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
	}
}

// TestRetryPolicyNegativeRetries treats a negative setting as no retries.
func TestRetryPolicyNegativeRetries(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(-1)
	assert.False(t, p.ShouldRetry(errors.New("x"), 1))
}
