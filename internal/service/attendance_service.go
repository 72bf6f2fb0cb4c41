package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dugsihub/dugsi-api/internal/models"
	"github.com/dugsihub/dugsi-api/internal/repository"
	appErrors "github.com/dugsihub/dugsi-api/pkg/errors"
)

type attendanceRepository interface {
	Create(ctx context.Context, record *models.Attendance) error
	CreateBatch(ctx context.Context, records []models.Attendance) error
	ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error)
	ClassOnDate(ctx context.Context, class string, date time.Time) ([]models.ClassAttendanceRow, error)
	AbsentOnDate(ctx context.Context, class string, date time.Time) ([]models.Student, error)
}

type attendanceStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListByClass(ctx context.Context, class string) ([]models.Student, error)
}

// DateLayout is the wire format for attendance dates.
const DateLayout = "2006-01-02"

// MarkAttendanceRequest holds payload for marking a single student.
type MarkAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Date      string  `json:"date" validate:"required"`
	Status    string  `json:"status" validate:"required"`
	Course    *string `json:"course"`
	Remarks   *string `json:"remarks"`
}

// BulkAttendanceEntry is one student's status inside a bulk request.
type BulkAttendanceEntry struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required"`
	Remarks   *string `json:"remarks"`
}

// BulkAttendanceRequest marks a whole class for one date.
type BulkAttendanceRequest struct {
	Class   string                `json:"class" validate:"required"`
	Date    string                `json:"date" validate:"required"`
	Entries []BulkAttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService handles attendance ledger use-cases. Records are
// append-only: re-marking a day is rejected, never merged.
type AttendanceService struct {
	repo      attendanceRepository
	students  attendanceStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students attendanceStudentRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, students: students, validator: validate, logger: logger}
}

// Mark records a single student's status for a day.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of present, absent, late, excused")
	}
	date, err := time.Parse(DateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	record := &models.Attendance{
		StudentID: req.StudentID,
		Date:      date,
		Status:    status,
		Course:    req.Course,
		Remarks:   req.Remarks,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already marked for this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return record, nil
}

// MarkBulk records a whole class for one date in a single transaction.
// One duplicate rejects the entire batch.
func (s *AttendanceService) MarkBulk(ctx context.Context, req BulkAttendanceRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	date, err := time.Parse(DateLayout, req.Date)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}

	roster, err := s.students.ListByClass(ctx, req.Class)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	inClass := make(map[string]struct{}, len(roster))
	for _, student := range roster {
		inClass[student.ID] = struct{}{}
	}

	records := make([]models.Attendance, 0, len(req.Entries))
	for _, entry := range req.Entries {
		status := models.AttendanceStatus(entry.Status)
		if !status.Valid() {
			return 0, appErrors.Clone(appErrors.ErrValidation, "status must be one of present, absent, late, excused")
		}
		if _, ok := inClass[entry.StudentID]; !ok {
			return 0, appErrors.Clone(appErrors.ErrValidation, "some students do not belong to this class")
		}
		records = append(records, models.Attendance{
			StudentID: entry.StudentID,
			Date:      date,
			Status:    status,
			Remarks:   entry.Remarks,
		})
	}

	if err := s.repo.CreateBatch(ctx, records); err != nil {
		if repository.IsUniqueViolation(err) {
			return 0, appErrors.Clone(appErrors.ErrConflict, "attendance already marked for some students on this date")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark bulk attendance")
	}
	s.logger.Info("bulk attendance marked", zap.String("class", req.Class), zap.String("date", req.Date), zap.Int("count", len(records)))
	return len(records), nil
}

// History returns a student's attendance records, newest first.
func (s *AttendanceService) History(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	records, err := s.repo.ListByStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// Summary aggregates a student's attendance over an optional range.
func (s *AttendanceService) Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	summary, err := s.repo.Summary(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build attendance summary")
	}
	return summary, nil
}

// ClassOnDate reports each student in a class with their status for a date.
func (s *AttendanceService) ClassOnDate(ctx context.Context, class string, date time.Time) ([]models.ClassAttendanceRow, error) {
	rows, err := s.repo.ClassOnDate(ctx, class, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class attendance")
	}
	return rows, nil
}

// AbsentOnDate lists students in a class without a present record for a date.
func (s *AttendanceService) AbsentOnDate(ctx context.Context, class string, date time.Time) ([]models.Student, error) {
	students, err := s.repo.AbsentOnDate(ctx, class, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absent students")
	}
	return students, nil
}
