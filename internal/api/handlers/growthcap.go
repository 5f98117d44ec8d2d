package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/market-value-forecast/internal/growthcap"
	"github.com/stitts-dev/market-value-forecast/pkg/utils"
)

type GrowthCapHandler struct {
	engine *growthcap.Engine
}

func NewGrowthCapHandler(engine *growthcap.Engine) *GrowthCapHandler {
	return &GrowthCapHandler{engine: engine}
}

type growthCapRequest struct {
	AgeLimit   *float64        `json:"age_limit" binding:"omitempty,gte=0"`
	ScaleLimit *float64        `json:"scale_limit" binding:"omitempty,gt=0,lte=1"`
	Rows       []growthcap.Row `json:"rows" binding:"required"`
}

// ApplyGrowthCap caps a batch of predictions. Limits default to the server's
// engine settings.
func (h *GrowthCapHandler) ApplyGrowthCap(c *gin.Context) {
	var req growthCapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	engine := *h.engine
	if req.AgeLimit != nil {
		engine.AgeLimit = *req.AgeLimit
	}
	if req.ScaleLimit != nil {
		engine.ScaleLimit = *req.ScaleLimit
	}

	results, err := engine.Apply(c.Request.Context(), req.Rows)
	if err != nil {
		var verr *growthcap.ValidationError
		if errors.As(err, &verr) {
			utils.SendUnprocessable(c, utils.ErrCodeValidation, "Invalid prediction row", err.Error())
			return
		}
		utils.SendInternalError(c, "Failed to apply growth cap")
		return
	}

	capped := 0
	for _, r := range results {
		if r.Capped {
			capped++
		}
	}
	utils.SendSuccess(c, gin.H{
		"age_limit":   engine.AgeLimit,
		"scale_limit": engine.ScaleLimit,
		"capped":      capped,
		"rows":        results,
	})
}
