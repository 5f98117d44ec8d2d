package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/metrics"
)

// ErrMiss is returned when a run is not cached.
var ErrMiss = errors.New("projection not cached")

const keyPrefix = "projection:"

// ProjectionCache keeps finished runs in redis keyed by run id. Reads and writes go
// through a circuit breaker; misses do not count as failures.
type ProjectionCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewProjectionCache(client *redis.Client, ttl time.Duration) *ProjectionCache {
	return NewProjectionCacheWithBreaker(client, ttl, DefaultBreakerConfig(), logrus.StandardLogger())
}

// BreakerConfig tunes the redis circuit breaker.
type BreakerConfig struct {
	// Interval is how often the closed-state counts reset.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open after tripping.
	OpenTimeout time.Duration
	// ConsecutiveFailures trips the breaker regardless of the failure ratio.
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Interval:            time.Minute,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

func NewProjectionCacheWithBreaker(client *redis.Client, ttl time.Duration, cfg BreakerConfig, logger *logrus.Logger) *ProjectionCache {
	settings := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	return &ProjectionCache{
		client:  client,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// NewClient parses a redis URL such as redis://localhost:6379/0.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Key returns the redis key for a run.
func Key(runID string) string {
	return keyPrefix + runID
}

func (c *ProjectionCache) Set(ctx context.Context, result *forecast.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal projection: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, Key(result.RunID), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (c *ProjectionCache) Get(ctx context.Context, runID string) (*forecast.Result, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, Key(runID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return data, err
	})
	if err != nil {
		if errors.Is(err, ErrMiss) {
			metrics.CacheRequests.WithLabelValues("miss").Inc()
			return nil, ErrMiss
		}
		metrics.CacheRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	data := raw.([]byte)

	var result forecast.Result
	if err := json.Unmarshal(data, &result); err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to unmarshal projection: %w", err)
	}
	result.Elapsed = time.Duration(result.ElapsedSecs * float64(time.Second))
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return &result, nil
}

// SetWithRetry retries transient write failures with a linear backoff.
func (c *ProjectionCache) SetWithRetry(ctx context.Context, result *forecast.Result, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = c.Set(ctx, result); err == nil {
			return nil
		}
		logrus.Warnf("Cache set failed (attempt %d/%d): %v", i+1, maxRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * 100 * time.Duration(i+1)):
		}
	}
	return err
}

// Ping backs the readiness probe. It goes through the breaker, so an open breaker
// reports not ready without touching redis.
func (c *ProjectionCache) Ping(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err
}

// RetryingStore stores scheduled refresh results with SetWithRetry.
type RetryingStore struct {
	Cache      *ProjectionCache
	MaxRetries int
}

func (s RetryingStore) Set(ctx context.Context, result *forecast.Result) error {
	return s.Cache.SetWithRetry(ctx, result, s.MaxRetries)
}
