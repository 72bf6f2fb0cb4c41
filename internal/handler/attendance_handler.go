package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dugsihub/dugsi-api/internal/service"
	appErrors "github.com/dugsihub/dugsi-api/pkg/errors"
	"github.com/dugsihub/dugsi-api/pkg/response"
)

// AttendanceHandler exposes attendance ledger endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	exports    *service.ExportService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, exports *service.ExportService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, exports: exports}
}

// Mark godoc
// @Summary Mark attendance for a student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// MarkBulk godoc
// @Summary Mark attendance for a whole class
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkAttendanceRequest true "Bulk attendance payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) MarkBulk(c *gin.Context) {
	var req service.BulkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	count, err := h.attendance.MarkBulk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"marked": count})
}

// History godoc
// @Summary Attendance history for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "Range start YYYY-MM-DD"
// @Param to query string false "Range end YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /attendance/student/{id} [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.History(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Attendance summary for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "Range start YYYY-MM-DD"
// @Param to query string false "Range end YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /attendance/student/{id}/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.attendance.Summary(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Class godoc
// @Summary Class register for a date
// @Tags Attendance
// @Produce json
// @Param class path string true "Class label"
// @Param date query string false "Date YYYY-MM-DD (defaults to today)"
// @Success 200 {object} response.Envelope
// @Router /attendance/class/{class} [get]
func (h *AttendanceHandler) Class(c *gin.Context) {
	date, err := parseDateOrToday(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.attendance.ClassOnDate(c.Request.Context(), c.Param("class"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Absent godoc
// @Summary Absent students for a class and date
// @Tags Attendance
// @Produce json
// @Param class path string true "Class label"
// @Param date path string true "Date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /attendance/absent/{class}/{date} [get]
func (h *AttendanceHandler) Absent(c *gin.Context) {
	date, err := time.Parse(service.DateLayout, c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD"))
		return
	}
	students, err := h.attendance.AbsentOnDate(c.Request.Context(), c.Param("class"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// ExportClass godoc
// @Summary Export a class register for a date
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param class path string true "Class label"
// @Param date query string false "Date YYYY-MM-DD (defaults to today)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /attendance/class/{class}/export [get]
func (h *AttendanceHandler) ExportClass(c *gin.Context) {
	date, err := parseDateOrToday(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.ClassAttendanceReport(c.Request.Context(), c.Param("class"), date, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func parseRange(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(service.DateLayout, raw)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD")
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(service.DateLayout, raw)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD")
		}
		to = &parsed
	}
	return from, to, nil
}

func parseDateOrToday(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse(service.DateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}
	return parsed, nil
}
