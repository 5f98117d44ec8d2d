package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

func setup(t *testing.T) (*miniredis.Miniredis, *ProjectionCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewProjectionCache(client, time.Hour)
}

func sampleResult() *forecast.Result {
	return &forecast.Result{
		RunID:       "run-42",
		RunDate:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		ElapsedSecs: 2.5,
		SplitYear:   2023,
		Years:       2,
		ModelType:   "ridge_regression",
		Features:    []string{"value_last_year", "age_last_year"},
		Projections: []forecast.Projection{
			{PlayerID: "9", Year: 2023, Age: 33, PredictedValue: 12, RawValue: 12, ActualValue: panel.Float(11)},
			{PlayerID: "9", Year: 2024, Age: 34, PredictedValue: 9.6, RawValue: 14, Capped: true},
		},
	}
}

func TestProjectionCache_SetGet(t *testing.T) {
	mr, c := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleResult()))
	assert.True(t, mr.Exists("projection:run-42"))
	assert.Equal(t, time.Hour, mr.TTL("projection:run-42"))

	got, err := c.Get(ctx, "run-42")
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, got.Elapsed)
	assert.Equal(t, sampleResult().Projections, got.Projections)
	assert.Equal(t, sampleResult().Features, got.Features)
}

func TestProjectionCache_MissAndExpiry(t *testing.T) {
	mr, c := setup(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, sampleResult()))
	mr.FastForward(2 * time.Hour)
	_, err = c.Get(ctx, "run-42")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRetryingStore(t *testing.T) {
	mr, c := setup(t)
	ctx := context.Background()

	store := RetryingStore{Cache: c, MaxRetries: 3}
	require.NoError(t, store.Set(ctx, sampleResult()))
	assert.True(t, mr.Exists("projection:run-42"))

	mr.Close()
	assert.Error(t, store.Set(ctx, sampleResult()))
}

func TestProjectionCache_ServerDown(t *testing.T) {
	mr, c := setup(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Ping(ctx))
	assert.Error(t, c.SetWithRetry(ctx, sampleResult(), 2))
}

func TestProjectionCache_BreakerOpensOnFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewProjectionCacheWithBreaker(client, time.Hour, BreakerConfig{
		Interval:            time.Hour,
		OpenTimeout:         time.Minute,
		ConsecutiveFailures: 3,
	}, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := c.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrMiss)
	}
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State(), "misses are not failures")

	mr.Close()
	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "run-42")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.breaker.State())

	_, err := c.Get(ctx, "run-42")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, c.Ping(ctx), gobreaker.ErrOpenState, "readiness fails fast while open")
}

func TestProjectionCache_BreakerRatioAfterIntervalReset(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewProjectionCacheWithBreaker(client, time.Hour, BreakerConfig{
		Interval:    200 * time.Millisecond,
		OpenTimeout: time.Minute,
	}, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := c.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrMiss)
	}
	time.Sleep(300 * time.Millisecond)

	mr.Close()
	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "run-42")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.breaker.State(), "earlier misses no longer dilute the ratio")
}

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.OpenTimeout)
	assert.Equal(t, uint32(3), cfg.ConsecutiveFailures)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)
	client.Close()

	_, err = NewClient("://bad")
	assert.Error(t, err)
}
