package tileprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/metrics"
	"github.com/paulmach/orb/maptile"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

const maxTileBytes = 4 * 1024 * 1024

type statusCodeError struct {
	StatusCode int
	URL        string
}

func (e *statusCodeError) Error() string {
	return fmt.Sprintf("tile server returned status %d for %s", e.StatusCode, e.URL)
}

// tileClient fetches encoded tiles from an XYZ tile server.
// It retries with exponential backoff within a fixed attempt budget, and guards the server with a circuit breaker.
type tileClient struct {
	logger        *logpkg.Logger
	doer          httpextra.Doer
	urlTemplate   string
	userAgent     string
	maxAttempts   int
	retryDelay    time.Duration
	flightTimeout time.Duration
	cache         *lru.Cache[string, []byte]
	flights       *singleflight.Group
	breaker       *gobreaker.CircuitBreaker[[]byte]
}

func newTileClient(logger *logpkg.Logger, doer httpextra.Doer, conf XYZConfig) (*tileClient, errorsx.Error) {
	cache, err := lru.New[string, []byte](conf.CacheSize)
	if err != nil {
		return nil, errorsx.Wrap(err, "cacheSize", conf.CacheSize)
	}

	breakerName := "tile-server"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     conf.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= conf.BreakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %q changed state from %s to %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateToFloat(to))
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// a missing tile is the client's problem, not a sign the server is down
			var statusErr *statusCodeError
			return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
		},
	})

	return &tileClient{
		logger:        logger,
		doer:          doer,
		urlTemplate:   conf.URLTemplate,
		userAgent:     conf.UserAgent,
		maxAttempts:   conf.MaxAttempts,
		retryDelay:    conf.RetryDelay,
		flightTimeout: conf.Timeout,
		cache:         cache,
		flights:       new(singleflight.Group),
		breaker:       breaker,
	}, nil
}

func (c *tileClient) tileURL(tile maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(int(tile.Z)),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
	).Replace(c.urlTemplate)
}

// GetTile returns the encoded tile. Concurrent requests for the same tile share one fetch.
func (c *tileClient) GetTile(ctx context.Context, tile maptile.Tile) ([]byte, error) {
	url := c.tileURL(tile)

	tileBytes, ok := c.cache.Get(url)
	if ok {
		metrics.TileCacheHits.Inc()
		return tileBytes, nil
	}
	metrics.TileCacheMisses.Inc()

	resultChan := c.flights.DoChan(url, func() (interface{}, error) {
		// the fetch is shared between callers, so it is not tied to any single caller's cancellation
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		tileBytes, err := c.fetchWithRetry(flightCtx, url)
		if err != nil {
			return nil, err
		}

		c.cache.Add(url, tileBytes)
		return tileBytes, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.([]byte), nil
	}
}

func (c *tileClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying tile fetch %q (attempt %d/%d) after %s", url, attempt+1, c.maxAttempts, delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		tileBytes, err := c.breaker.Execute(func() ([]byte, error) {
			return c.fetch(ctx, url)
		})
		if err == nil {
			metrics.TileFetchesTotal.WithLabelValues("success").Inc()
			return tileBytes, nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.TileFetchesTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}

		metrics.TileFetchesTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("tile fetch attempt %d/%d for %q failed. Error: %q", attempt+1, c.maxAttempts, url, err)

		if !isRetryable(ctx, err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", c.maxAttempts, lastErr)
}

func (c *tileClient) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/png,image/jpeg,image/*")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusCodeError{resp.StatusCode, url}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var statusErr *statusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	// transport errors
	return true
}

func breakerStateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
