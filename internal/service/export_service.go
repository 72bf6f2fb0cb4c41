package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dugsihub/dugsi-api/internal/models"
	appErrors "github.com/dugsihub/dugsi-api/pkg/errors"
	"github.com/dugsihub/dugsi-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportBillRepository interface {
	StatusView(ctx context.Context, period string) ([]models.StudentBillStatus, error)
}

type exportAttendanceRepository interface {
	ClassOnDate(ctx context.Context, class string, date time.Time) ([]models.ClassAttendanceRow, error)
}

// ExportResult carries a rendered report ready for download.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders billing and attendance reports as CSV or PDF.
type ExportService struct {
	bills      exportBillRepository
	attendance exportAttendanceRepository
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(bills exportBillRepository, attendance exportAttendanceRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{bills: bills, attendance: attendance, csv: csv, pdf: pdf, logger: logger}
}

// BillsReport renders the student/bill status view for a period.
func (s *ExportService) BillsReport(ctx context.Context, period, format string) (*ExportResult, error) {
	if !models.ValidPeriod(period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period must be formatted YYYY-MM")
	}
	rows, err := s.bills.StatusView(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bill status view")
	}

	data := export.Dataset{Headers: []string{"Student", "Class", "Fee", "Status"}}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Student": row.StudentName,
			"Class":   row.Class,
			"Fee":     strconv.FormatFloat(row.Fee, 'f', 2, 64),
			"Status":  row.BillStatus,
		})
	}
	return s.render(data, fmt.Sprintf("bills-%s", period), fmt.Sprintf("bills %s", period), format)
}

// ClassAttendanceReport renders a class register for one date.
func (s *ExportService) ClassAttendanceReport(ctx context.Context, class string, date time.Time, format string) (*ExportResult, error) {
	rows, err := s.attendance.ClassOnDate(ctx, class, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class attendance")
	}

	data := export.Dataset{Headers: []string{"Student", "Status", "Remarks"}}
	for _, row := range rows {
		status := "unmarked"
		if row.Status != nil {
			status = string(*row.Status)
		}
		remarks := ""
		if row.Remarks != nil {
			remarks = *row.Remarks
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student": row.StudentName,
			"Status":  status,
			"Remarks": remarks,
		})
	}
	day := date.Format(DateLayout)
	return s.render(data, fmt.Sprintf("attendance-%s-%s", class, day), fmt.Sprintf("attendance %s %s", class, day), format)
}

func (s *ExportService) render(data export.Dataset, basename, title, format string) (*ExportResult, error) {
	switch format {
	case "", "csv":
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Filename: basename + ".csv", ContentType: "text/csv", Content: content}, nil
	case "pdf":
		content, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Filename: basename + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
