// Package app assembles the forecast components from configuration. The server and
// the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/market-value-forecast/internal/cache"
	"github.com/stitts-dev/market-value-forecast/internal/features"
	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/growthcap"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
	"github.com/stitts-dev/market-value-forecast/internal/predictor"
	"github.com/stitts-dev/market-value-forecast/internal/recorder"
	"github.com/stitts-dev/market-value-forecast/pkg/config"
	"github.com/stitts-dev/market-value-forecast/pkg/database"
)

type App struct {
	Config   *config.Config
	Features features.Config
	Logger   *logrus.Logger
	Engine   *growthcap.Engine

	// Optional backends, nil when not configured.
	DB    *database.DB
	Redis *redis.Client
	Cache *cache.ProjectionCache
	Runs  *recorder.DBRecorder

	Recorder   recorder.Recorder
	Forecaster *forecast.Forecaster
}

// New connects the configured backends and builds the forecaster. Runs are always
// written as CSV under OutputDir and also to the database when one is configured.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	featureCfg, err := features.LoadConfig(cfg.FeaturesPath)
	if err != nil {
		return nil, err
	}
	if cfg.TargetColumn != "" {
		featureCfg.Target = cfg.TargetColumn
	}

	a := &App{
		Config:   cfg,
		Features: featureCfg,
		Logger:   logger,
		Engine:   growthcap.New(cfg.AgeLimit, cfg.ScaleLimit, cfg.CapWorkers),
	}

	sinks := []recorder.Recorder{recorder.NewCSVRecorder(cfg.OutputDir)}

	if cfg.DatabaseURL != "" {
		db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Runs = recorder.NewDBRecorder(db)
		sinks = append(sinks, a.Runs)
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = client
		a.Cache = cache.NewProjectionCacheWithBreaker(client, cfg.CacheTTL, cache.BreakerConfig{
			Interval:            cfg.CacheBreakerInterval,
			OpenTimeout:         cfg.CacheBreakerTimeout,
			ConsecutiveFailures: cache.DefaultBreakerConfig().ConsecutiveFailures,
		}, logger)
	}

	a.Recorder = recorder.NewMulti(logger, sinks...)
	lambda := cfg.RidgeLambda
	a.Forecaster = forecast.New(
		func() predictor.Trainer { return predictor.NewRidgeRegression(lambda) },
		a.Engine,
		a.Recorder,
		logger,
	)
	return a, nil
}

// Options returns the run options from configuration.
func (a *App) Options() forecast.Options {
	return forecast.Options{
		SplitYear:    a.Config.SplitYear,
		Years:        a.Config.ProjectionYears,
		Features:     a.Features,
		ModelVersion: a.Config.ModelVersion,
	}
}

// LoadPanel reads the configured input CSV, dropping synthetic rows when asked to.
func (a *App) LoadPanel(ctx context.Context) (*panel.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := panel.LoadCSV(a.Config.DataPath, a.Features.Target)
	if err != nil {
		return nil, err
	}
	if a.Config.FilterOutSynthetic {
		before := p.Len()
		p = panel.FilterSynthetic(p)
		a.Logger.WithFields(logrus.Fields{
			"rows":    p.Len(),
			"dropped": before - p.Len(),
		}).Debug("Filtered synthetic rows")
	}
	a.Logger.WithFields(logrus.Fields{
		"path":  a.Config.DataPath,
		"rows":  p.Len(),
		"years": p.Years(),
	}).Info("Loaded player panel")
	return p, nil
}

// Close releases the backends.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close database")
		}
	}
}
