package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/market-value-forecast/internal/api"
	"github.com/stitts-dev/market-value-forecast/internal/api/handlers"
	"github.com/stitts-dev/market-value-forecast/internal/api/middleware"
	"github.com/stitts-dev/market-value-forecast/internal/app"
	"github.com/stitts-dev/market-value-forecast/internal/cache"
	"github.com/stitts-dev/market-value-forecast/internal/scheduler"
	"github.com/stitts-dev/market-value-forecast/pkg/config"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger(cfg.LoggerOptions())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	checks := map[string]handlers.Check{}
	if a.DB != nil {
		checks["database"] = a.DB.HealthCheck
	}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Ping
	}

	var status func() map[string]interface{}
	if cfg.ProjectionSchedule != "" {
		var store scheduler.Store
		if a.Cache != nil {
			store = cache.RetryingStore{Cache: a.Cache, MaxRetries: 3}
		}
		refresh := scheduler.NewRefreshService(a.LoadPanel, a.Forecaster, store, a.Options(), cfg.ProjectionSchedule, log)
		if err := refresh.Start(); err != nil {
			log.Errorf("Failed to start projection refresh: %v", err)
		} else {
			defer refresh.Stop()
			status = refresh.Status
		}
	}

	var runs handlers.RunStore
	if a.Runs != nil {
		runs = a.Runs
	}
	var resultCache handlers.ResultCache
	if a.Cache != nil {
		resultCache = a.Cache
	}

	router := api.NewRouter(api.Handlers{
		Projection: handlers.NewProjectionHandler(a.Forecaster, a.LoadPanel, a.Options(), runs, resultCache, log),
		GrowthCap:  handlers.NewGrowthCapHandler(a.Engine),
		Health:     handlers.NewHealthHandler(checks, status),
		RunLimiter: middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, log)

	for _, route := range router.Routes() {
		log.Debugf("%s %s", route.Method, route.Path)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithService("market-value-forecast").Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
