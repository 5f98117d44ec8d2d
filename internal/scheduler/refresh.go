package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
)

// Runner executes one projection run.
type Runner interface {
	Run(ctx context.Context, data *panel.Panel, opts forecast.Options) (*forecast.Result, error)
}

// Store keeps the latest result available to readers, e.g. the redis cache.
type Store interface {
	Set(ctx context.Context, result *forecast.Result) error
}

// Loader reads the current panel.
type Loader func(ctx context.Context) (*panel.Panel, error)

// RefreshService reruns the projection on a cron schedule. A tick that fires while
// the previous refresh is still running is skipped.
type RefreshService struct {
	load     Loader
	runner   Runner
	store    Store
	opts     forecast.Options
	schedule string
	timeout  time.Duration
	logger   *logrus.Logger
	cron     *cron.Cron

	mu        sync.Mutex
	isRunning bool
	lastRunID string
	lastRunAt time.Time
	lastError error
}

// NewRefreshService creates a refresh service. store may be nil.
func NewRefreshService(
	load Loader,
	runner Runner,
	store Store,
	opts forecast.Options,
	schedule string,
	logger *logrus.Logger,
) *RefreshService {
	return &RefreshService{
		load:     load,
		runner:   runner,
		store:    store,
		opts:     opts,
		schedule: schedule,
		timeout:  30 * time.Minute,
		logger:   logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(logger)),
			cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
		)),
	}
}

// Start registers the refresh job and starts the scheduler.
func (s *RefreshService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("refresh scheduler is already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.scheduledRefresh); err != nil {
		return fmt.Errorf("failed to schedule projection refresh: %w", err)
	}
	s.cron.Start()
	s.isRunning = true

	s.logger.WithField("schedule", s.schedule).Info("Projection refresh scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (s *RefreshService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Projection refresh scheduler stopped")
}

func (s *RefreshService) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.Refresh(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled projection refresh failed")
	}
}

// Refresh loads the panel, runs a projection and stores the result.
func (s *RefreshService) Refresh(ctx context.Context) (*forecast.Result, error) {
	s.logger.Info("Starting projection refresh")

	result, err := s.refresh(ctx)

	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.lastError = err
	if result != nil {
		s.lastRunID = result.RunID
	}
	s.mu.Unlock()

	if err != nil {
		return result, err
	}
	s.logger.WithFields(logrus.Fields{
		"model_output_id": result.RunID,
		"projections":     len(result.Projections),
	}).Info("Completed projection refresh")
	return result, nil
}

func (s *RefreshService) refresh(ctx context.Context) (*forecast.Result, error) {
	data, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load panel: %w", err)
	}

	// A result with a recording error is still served from the cache.
	result, err := s.runner.Run(ctx, data, s.opts)
	if result != nil && s.store != nil {
		if setErr := s.store.Set(ctx, result); setErr != nil {
			s.logger.WithError(setErr).Warn("Failed to store refreshed projection")
		}
	}
	return result, err
}

// Status reports scheduler state for the readiness endpoint.
func (s *RefreshService) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	nextRuns := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		nextRuns = append(nextRuns, entry.Next)
	}

	status := map[string]interface{}{
		"is_running":  s.isRunning,
		"schedule":    s.schedule,
		"next_runs":   nextRuns,
		"last_run_id": s.lastRunID,
	}
	if !s.lastRunAt.IsZero() {
		status["last_run_at"] = s.lastRunAt
	}
	if s.lastError != nil {
		status["last_error"] = s.lastError.Error()
	}
	return status
}
