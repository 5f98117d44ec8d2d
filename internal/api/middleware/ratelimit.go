package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/market-value-forecast/pkg/utils"
)

// RateLimit rejects requests with 429 once limiter has no tokens left. A nil
// limiter lets everything through.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow() {
			c.Next()
			return
		}

		retryAfter := 1
		if limit := limiter.Limit(); limit > 0 && limit != rate.Inf {
			retryAfter = int(math.Ceil(1 / float64(limit)))
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		utils.SendError(c, http.StatusTooManyRequests, utils.NewAppError(
			utils.ErrCodeRateLimited,
			"Too many projection requests",
			fmt.Sprintf("limit is %v per second", float64(limiter.Limit())),
		))
		c.Abort()
	}
}

// NewLimiter returns nil when rps is zero, disabling the limit.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
