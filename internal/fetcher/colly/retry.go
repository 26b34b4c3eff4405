package collyfetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// RetryPolicy retries transient fetch failures with jittered exponential backoff.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy allows maxRetries retries after the first attempt.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	return NewRetryPolicyWithDelays(maxRetries, 500*time.Millisecond, 10*time.Second)
}

// NewRetryPolicyWithDelays is NewRetryPolicy with explicit backoff bounds.
func NewRetryPolicyWithDelays(maxRetries int, base, limit time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		maxAttempts: maxRetries + 1,
		baseDelay:   base,
		maxDelay:    limit,
	}
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
// Client errors are final; 429, 5xx, timeouts, and connection failures are not.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if p == nil || err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var transportErr *catalog.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode != 0 {
		code := transportErr.StatusCode
		return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		var opErr *net.OpError
		return errors.As(err, &opErr)
	}
	return true
}

// Backoff returns the wait before retry number attempt (0-based).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *RetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
