package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dugsihub/dugsi-api/internal/service"
	appErrors "github.com/dugsihub/dugsi-api/pkg/errors"
	"github.com/dugsihub/dugsi-api/pkg/response"
)

// BillingHandler exposes billing cycle endpoints.
type BillingHandler struct {
	billing *service.BillingService
	exports *service.ExportService
	metrics *service.MetricsService
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(billing *service.BillingService, exports *service.ExportService, metrics *service.MetricsService) *BillingHandler {
	return &BillingHandler{billing: billing, exports: exports, metrics: metrics}
}

// Generate godoc
// @Summary Generate bills for the current period
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /billing/generate [post]
func (h *BillingHandler) Generate(c *gin.Context) {
	created, err := h.billing.GenerateCurrent(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AddBillsGenerated(created)
	}
	response.JSON(c, http.StatusOK, gin.H{"created": created}, nil)
}

// Pay godoc
// @Summary Mark a bill paid
// @Tags Billing
// @Produce json
// @Param id path string true "Bill ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bills/{id}/pay [patch]
func (h *BillingHandler) Pay(c *gin.Context) {
	bill, err := h.billing.Pay(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncBillsPaid()
	}
	response.JSON(c, http.StatusOK, bill, nil)
}

// Create godoc
// @Summary Create a bill manually
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body service.CreateBillRequest true "Bill payload"
// @Success 201 {object} response.Envelope
// @Router /bills [post]
func (h *BillingHandler) Create(c *gin.Context) {
	var req service.CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	bill, err := h.billing.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bill)
}

// StatusView godoc
// @Summary List every student with bill status for a period
// @Tags Billing
// @Produce json
// @Param period query string false "Billing period YYYY-MM (defaults to current)"
// @Success 200 {object} response.Envelope
// @Router /bills [get]
func (h *BillingHandler) StatusView(c *gin.Context) {
	rows, err := h.billing.StatusView(c.Request.Context(), c.Query("period"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ForStudent godoc
// @Summary List a student's bills
// @Tags Billing
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/bills [get]
func (h *BillingHandler) ForStudent(c *gin.Context) {
	bills, err := h.billing.ListForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bills, nil)
}

// Export godoc
// @Summary Export the bill status view
// @Tags Billing
// @Produce text/csv
// @Produce application/pdf
// @Param period query string false "Billing period YYYY-MM (defaults to current)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /bills/export [get]
func (h *BillingHandler) Export(c *gin.Context) {
	period := c.Query("period")
	if period == "" {
		period = h.billing.CurrentPeriod()
	}
	result, err := h.exports.BillsReport(c.Request.Context(), period, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
