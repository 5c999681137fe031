package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type planView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Interval   string `json:"interval,omitempty"`
	Credits    int64  `json:"credits"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

func (s *Server) HandleListPlans(c *gin.Context) {
	plans := s.catalog.All()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			ID:         p.ID,
			Name:       p.Name,
			Type:       p.Type,
			Interval:   string(p.Interval),
			Credits:    p.Credits,
			PriceCents: p.ChargeCents(),
			Currency:   p.Currency,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": views})
}
