package server

import (
	"net/http"

	checkoutdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/checkout/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleCreateCheckout(c *gin.Context) {
	var req checkoutdomain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkoutSvc.CreateSession(c.Request.Context(), authedUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
