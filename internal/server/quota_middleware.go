package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// QuotaMiddleware enforces the per-user request budget for one endpoint.
// Rejected requests get 429 with a Retry-After hint.
func (s *Server) QuotaMiddleware(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := authedUserID(c)
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		decision := s.quotaGate.Allow(c.Request.Context(), userID, endpoint)
		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"type":    "rate_limited",
					"message": "too many requests",
				},
				"retry_after": retryAfter,
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Next()
	}
}
