package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stitts-dev/market-value-forecast/internal/cache"
	"github.com/stitts-dev/market-value-forecast/internal/carrier"
	"github.com/stitts-dev/market-value-forecast/internal/features"
	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/growthcap"
	"github.com/stitts-dev/market-value-forecast/internal/models"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
	"github.com/stitts-dev/market-value-forecast/pkg/utils"
)

// Runner executes a projection run.
type Runner interface {
	Run(ctx context.Context, data *panel.Panel, opts forecast.Options) (*forecast.Result, error)
}

// RunStore loads persisted runs.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*models.RunHeader, error)
}

// ResultCache is the read-through cache in front of RunStore.
type ResultCache interface {
	Get(ctx context.Context, runID string) (*forecast.Result, error)
	Set(ctx context.Context, result *forecast.Result) error
}

type ProjectionHandler struct {
	runner   Runner
	load     func(ctx context.Context) (*panel.Panel, error)
	defaults forecast.Options
	store    RunStore
	cache    ResultCache
	logger   *logrus.Logger
}

// NewProjectionHandler creates the handler. store and resultCache may be nil.
func NewProjectionHandler(
	runner Runner,
	load func(ctx context.Context) (*panel.Panel, error),
	defaults forecast.Options,
	store RunStore,
	resultCache ResultCache,
	logger *logrus.Logger,
) *ProjectionHandler {
	return &ProjectionHandler{
		runner:   runner,
		load:     load,
		defaults: defaults,
		store:    store,
		cache:    resultCache,
		logger:   logger,
	}
}

type projectionRequest struct {
	SplitYear    int              `json:"split_year" binding:"omitempty,min=1900,max=2200"`
	Years        int              `json:"years" binding:"omitempty,min=1,max=20"`
	Features     []string         `json:"features"`
	Groups       []features.Group `json:"groups"`
	ModelVersion string           `json:"model_version"`
}

// CreateProjection runs a projection with the request's overrides on top of the
// configured defaults.
func (h *ProjectionHandler) CreateProjection(c *gin.Context) {
	var req projectionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendValidationError(c, "Invalid request body", err.Error())
			return
		}
	}

	opts := h.defaults
	opts.Features.Features = append([]string(nil), h.defaults.Features.Features...)
	if req.SplitYear != 0 {
		opts.SplitYear = req.SplitYear
	}
	if req.Years != 0 {
		opts.Years = req.Years
	}
	if len(req.Features) > 0 {
		opts.Features.Features = req.Features
	}
	if req.Groups != nil {
		for _, g := range req.Groups {
			if g.Placeholder == "" || g.Prefix == "" {
				utils.SendValidationError(c, "Invalid feature group", "placeholder and prefix are required")
				return
			}
		}
		opts.Features.Groups = req.Groups
	}
	if req.ModelVersion != "" {
		opts.ModelVersion = req.ModelVersion
	}

	ctx := c.Request.Context()
	data, err := h.load(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load panel")
		utils.SendInternalError(c, "Failed to load player data")
		return
	}

	result, err := h.runner.Run(ctx, data, opts)
	if err != nil && result == nil {
		h.sendRunError(c, err)
		return
	}
	if err != nil {
		// Projection succeeded; only persistence failed.
		h.logger.WithError(err).WithField("model_output_id", result.RunID).Warn("Projection run not recorded")
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, result); err != nil {
			h.logger.WithError(err).Warn("Failed to cache projection")
		}
	}
	utils.SendCreated(c, result)
}

// GetProjection returns a run from the cache, falling back to the database.
func (h *ProjectionHandler) GetProjection(c *gin.Context) {
	runID := c.Param("id")
	ctx := c.Request.Context()

	if h.cache != nil {
		result, err := h.cache.Get(ctx, runID)
		if err == nil {
			utils.SendSuccess(c, result)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			h.logger.WithError(err).Warn("Projection cache lookup failed")
		}
	}

	if h.store == nil {
		utils.SendNotFound(c, "Projection not found")
		return
	}
	header, err := h.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.SendNotFound(c, "Projection not found")
			return
		}
		h.logger.WithError(err).WithField("model_output_id", runID).Error("Failed to load projection")
		utils.SendInternalError(c, "Failed to load projection")
		return
	}

	result, err := forecast.FromRecords(*header)
	if err != nil {
		h.logger.WithError(err).WithField("model_output_id", runID).Error("Failed to decode projection")
		utils.SendInternalError(c, "Failed to load projection")
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, result); err != nil {
			h.logger.WithError(err).Warn("Failed to cache projection")
		}
	}
	utils.SendSuccess(c, result)
}

func (h *ProjectionHandler) sendRunError(c *gin.Context, err error) {
	var (
		capErr   *growthcap.ValidationError
		carryErr *carrier.ValidationError
	)
	switch {
	case errors.Is(err, forecast.ErrNoTrainingData), errors.Is(err, forecast.ErrNoTestData):
		utils.SendUnprocessable(c, utils.ErrCodeNoData, "Not enough data for the requested split", err.Error())
	case errors.Is(err, forecast.ErrInvalidYears),
		errors.Is(err, panel.ErrMissingFeature),
		errors.Is(err, panel.ErrMissingValue),
		errors.Is(err, panel.ErrDuplicateRecord),
		errors.As(err, &capErr),
		errors.As(err, &carryErr):
		utils.SendUnprocessable(c, utils.ErrCodeProjection, "Projection failed", err.Error())
	default:
		h.logger.WithError(err).Error("Projection run failed")
		utils.SendInternalError(c, "Projection run failed")
	}
}
