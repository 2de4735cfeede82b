package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"furadapt/api/internal/services"
)

// AnalyticsHandler serves the admin reports.
type AnalyticsHandler struct {
	analyticsService services.IAnalyticsService
}

func NewAnalyticsHandler(analyticsService services.IAnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// Dashboard handles GET /api/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	report, err := h.analyticsService.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to build dashboard")
		return
	}
	c.JSON(http.StatusOK, report)
}

// PetReport handles GET /api/analytics/pets
func (h *AnalyticsHandler) PetReport(c *gin.Context) {
	report, err := h.analyticsService.PetReport(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to build pet report")
		return
	}
	c.JSON(http.StatusOK, report)
}
