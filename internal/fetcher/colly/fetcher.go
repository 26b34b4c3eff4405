// Package collyfetcher implements catalog.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/policy/ratelimit"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior. It is fixed at construction; nothing is
// mutated per call.
type Config struct {
	UserAgent string
	// Headers are added to every request.
	Headers map[string]string
	Timeout time.Duration
	// Delay is the minimum spacing between requests to one host.
	Delay      time.Duration
	MaxRetries int
}

// Fetcher implements catalog.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	retry         *RetryPolicy
	limiter       *ratelimit.Limiter
	archiver      catalog.Archiver
	logger        *zap.Logger
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the HTTP transport, typically with a mock in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.baseCollector.WithTransport(rt)
	}
}

// WithArchiver keeps a raw copy of every successfully fetched page.
func WithArchiver(a catalog.Archiver) Option {
	return func(f *Fetcher) {
		f.archiver = a
	}
}

// WithRetryPolicy overrides the policy derived from Config.MaxRetries.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(f *Fetcher) {
		f.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		retry:         NewRetryPolicy(cfg.MaxRetries),
		limiter:       ratelimit.New(ratelimit.Config{Interval: cfg.Delay, Burst: 1}),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch issues a GET for addr, retrying transient failures. Non-2xx statuses,
// network failures, and timeouts are reported as *catalog.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, addr catalog.Address) (catalog.Page, error) {
	if addr.URL == "" {
		return catalog.Page{}, &catalog.TransportError{Err: errors.New("empty address")}
	}
	for attempt := 1; ; attempt++ {
		page, err := f.fetchOnce(ctx, addr)
		if err == nil {
			f.archive(ctx, addr, page.Body)
			return page, nil
		}
		if !f.retry.ShouldRetry(err, attempt) {
			return catalog.Page{}, err
		}
		wait := f.retry.Backoff(attempt - 1)
		f.logger.Debug("retrying fetch",
			zap.String("address", addr.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return catalog.Page{}, &catalog.TransportError{Address: addr.URL, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, addr catalog.Address) (catalog.Page, error) {
	waited, err := f.limiter.Wait(ctx, addr.URL)
	if err != nil {
		return catalog.Page{}, &catalog.TransportError{Address: addr.URL, Err: err}
	}
	if waited > time.Millisecond {
		f.logger.Debug("paced request", zap.String("host", ratelimit.Host(addr.URL)), zap.Duration("waited", waited))
	}

	var (
		result   catalog.Page
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, addr, time.Now(), &result, &fetchErr)

	if err := f.runCollector(ctx, collector, addr.URL, &fetchErr); err != nil {
		return catalog.Page{}, &catalog.TransportError{Address: addr.URL, StatusCode: result.StatusCode, Err: err}
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return catalog.Page{}, &catalog.TransportError{
			Address:    addr.URL,
			StatusCode: result.StatusCode,
			Err:        errors.New(http.StatusText(result.StatusCode)),
		}
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	addr catalog.Address,
	start time.Time,
	result *catalog.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, value := range f.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = catalog.Page{
			Address:    addr,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) archive(ctx context.Context, addr catalog.Address, body []byte) {
	if f.archiver == nil {
		return
	}
	f.archiver.Archive(ctx, addr.Name, body)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
