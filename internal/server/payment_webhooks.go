package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	settlementdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/settlement/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlePaymentWebhook ingests one provider delivery. Signature failures
// return 400; persistence failures return 500 so the provider retries;
// everything else acknowledges with 200.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.settlementSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, settlementdomain.ErrInvalidSignature),
			errors.Is(err, settlementdomain.ErrInvalidPayload),
			errors.Is(err, settlementdomain.ErrInvalidEvent),
			errors.Is(err, settlementdomain.ErrInvalidProvider):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"received": false,
				"error":    "invalid webhook",
			})
		case errors.Is(err, settlementdomain.ErrProviderNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"received": false,
				"error":    "unknown provider",
			})
		default:
			s.log.Error("webhook processing failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"received": false,
				"error":    "processing failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"processed": outcome.Processed,
	})
}
