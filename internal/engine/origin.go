package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/folio-dev/folio/internal/metrics"
	"github.com/folio-dev/folio/pkg/schema"
)

// DefaultOriginTimeout bounds a single origin request.
const DefaultOriginTimeout = 10 * time.Second

// maxOriginBody caps how much of an origin response is read.
const maxOriginBody = 32 << 20

// Fetcher supplies the catalogue from somewhere other than the working file.
type Fetcher interface {
	Fetch(ctx context.Context) ([]schema.Collection, error)
}

// Origin fetches the catalogue from the remote origin over HTTP.
type Origin struct {
	url     string
	client  *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Collector
}

// OriginOption configures an Origin.
type OriginOption func(*Origin)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) OriginOption {
	return func(o *Origin) { o.client = c }
}

// WithOriginTimeout sets the per-request deadline.
func WithOriginTimeout(d time.Duration) OriginOption {
	return func(o *Origin) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithOriginLogger sets the logger.
func WithOriginLogger(l *zap.Logger) OriginOption {
	return func(o *Origin) { o.logger = l }
}

// WithOriginMetrics records fetch outcomes on c.
func WithOriginMetrics(c *metrics.Collector) OriginOption {
	return func(o *Origin) { o.metrics = c }
}

// NewOrigin creates an origin fetching the JSON array at url.
func NewOrigin(url string, opts ...OriginOption) *Origin {
	o := &Origin{
		url:     url,
		client:  &http.Client{},
		timeout: DefaultOriginTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "origin",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A malformed payload is the origin's data problem, not an outage, and a
		// caller giving up is not the origin's fault either.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrParse) || errors.Is(err, context.Canceled)
		},
	})
	return o
}

// URL returns the address the origin fetches from.
func (o *Origin) URL() string {
	return o.url
}

// Fetch downloads and decodes the catalogue.
func (o *Origin) Fetch(ctx context.Context) ([]schema.Collection, error) {
	res, err := o.breaker.Execute(func() (any, error) {
		return o.fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", ErrNetwork, o.url, err)
	}
	o.metrics.ObserveFetch(err)
	if err != nil {
		return nil, err
	}
	return res.([]schema.Collection), nil
}

func (o *Origin) fetch(ctx context.Context) ([]schema.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", ErrNetwork, o.url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s answered %s", ErrNetwork, o.url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOriginBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body from %s: %v", ErrNetwork, o.url, err)
	}
	o.logger.Debug("remote projects data received", zap.Int("bytes", len(body)))

	collections, err := decodeCollections(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, o.url, err)
	}
	return collections, nil
}
