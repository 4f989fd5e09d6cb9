// Package fetch downloads media attachments over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jo-hoe/memereport/internal/metrics"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second

	errorBodySnippetBytes = 512
	breakerName           = "media-fetch"
)

// ErrBreakerOpen is returned without a request while the circuit breaker is open
var ErrBreakerOpen = errors.New("circuit breaker " + breakerName + " is open")

// StatusError is returned for any non-200 response
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s from %s: %s", e.Status, e.URL, e.Body)
}

type Config struct {
	Timeout time.Duration
	// RequestsPerSecond of zero disables rate limiting
	RequestsPerSecond float64
	Burst             int
	// BreakerThreshold consecutive failures open the breaker
	BreakerThreshold uint32
	// BreakerCooldown is how long the breaker stays open before letting one request through
	BreakerCooldown time.Duration
	UserAgent       string
}

// Fetcher downloads media one request at a time
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	cache     MediaCache
	metrics   *metrics.Collectors
	userAgent string
}

// NewFetcher builds a fetcher. cache and collectors may be nil.
func NewFetcher(config Config, cache MediaCache, collectors *metrics.Collectors) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.BreakerThreshold == 0 {
		config.BreakerThreshold = DefaultBreakerThreshold
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = DefaultBreakerCooldown
	}
	if cache == nil {
		cache = NoopCache{}
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := max(config.Burst, 1)

	f := &Fetcher{
		client:    &http.Client{Timeout: config.Timeout},
		limiter:   rate.NewLimiter(limit, burst),
		cache:     cache,
		metrics:   collectors,
		userAgent: config.UserAgent,
	}

	threshold := config.BreakerThreshold
	f.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A 4xx means the host answered; only transport errors and 5xx count against it
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Fetcher: circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if f.metrics != nil {
				f.metrics.BreakerState.Set(float64(to))
			}
		},
	})

	return f
}

// Fetch returns the body of url. Cached media skips the network.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := f.fromCache(ctx, url); ok {
		return data, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait for %s: %w", url, err)
	}

	data, err := f.breaker.Execute(func() ([]byte, error) {
		return f.get(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("fetch %s rejected: %w: %w", url, ErrBreakerOpen, err)
		}
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.FetchedBytes.Add(float64(len(data)))
	}
	if err := f.cache.Set(ctx, url, data); err != nil {
		slog.Warn("Fetcher: failed to cache media", "url", url, "error", err)
	}
	return data, nil
}

// BreakerState reports the current circuit breaker state
func (f *Fetcher) BreakerState() gobreaker.State {
	return f.breaker.State()
}

func (f *Fetcher) fromCache(ctx context.Context, url string) ([]byte, bool) {
	data, ok, err := f.cache.Get(ctx, url)
	if err != nil {
		slog.Warn("Fetcher: media cache lookup failed", "url", url, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	slog.Debug("Fetcher: media served from cache", "url", url, "size_bytes", len(data))
	if f.metrics != nil {
		f.metrics.CacheHits.Inc()
		f.metrics.FetchedBytes.Add(float64(len(data)))
	}
	return data, true
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if f.userAgent != "" {
		request.Header.Set("User-Agent", f.userAgent)
	}

	response, err := f.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		if cerr := response.Body.Close(); cerr != nil {
			slog.Debug("Fetcher: failed to close response body", "url", url, "error", cerr)
		}
	}()

	if response.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, errorBodySnippetBytes))
		return nil, &StatusError{
			URL:        url,
			StatusCode: response.StatusCode,
			Status:     response.Status,
			Body:       string(snippet),
		}
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return data, nil
}
