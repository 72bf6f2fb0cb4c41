package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dugsihub/dugsi-api/internal/service"
	"github.com/dugsihub/dugsi-api/pkg/response"
)

// DashboardHandler exposes the admin dashboard aggregate.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Snapshot godoc
// @Summary Admin dashboard aggregate
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Snapshot(c *gin.Context) {
	snapshot, cacheHit, err := h.dashboard.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil, map[string]interface{}{"cache_hit": cacheHit})
}
