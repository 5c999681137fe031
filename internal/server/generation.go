package server

import (
	"net/http"

	generationdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/generation/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleGenerate(c *gin.Context) {
	var req generationdomain.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.generationSvc.Generate(c.Request.Context(), authedUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleSuggest(c *gin.Context) {
	var req generationdomain.SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.generationSvc.Suggest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
