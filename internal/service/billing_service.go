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

type billRepository interface {
	InsertMissingForPeriod(ctx context.Context, period string) (int, error)
	Create(ctx context.Context, bill *models.Bill) error
	FindByID(ctx context.Context, id string) (*models.Bill, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Bill, error)
	StatusView(ctx context.Context, period string) ([]models.StudentBillStatus, error)
	RevertExpired(ctx context.Context, cutoff time.Time) (int, error)
}

type billingStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// CreateBillRequest holds payload for manual bill creation.
type CreateBillRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	Period    string   `json:"period" validate:"required"`
	Amount    *float64 `json:"amount" validate:"omitempty,gte=0"`
}

// BillingService owns the monthly billing cycle: one bill per student per
// period, frozen at the student's fee at generation time.
type BillingService struct {
	bills     billRepository
	students  billingStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBillingService constructs the billing service.
func NewBillingService(bills billRepository, students billingStudentRepository, validate *validator.Validate, logger *zap.Logger) *BillingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{bills: bills, students: students, validator: validate, logger: logger, now: time.Now}
}

// CurrentPeriod returns the billing period covering the present moment.
func (s *BillingService) CurrentPeriod() string {
	return models.PeriodOf(s.now())
}

// GenerateCurrent creates missing bills for the current period.
func (s *BillingService) GenerateCurrent(ctx context.Context) (int, error) {
	return s.GenerateForPeriod(ctx, s.CurrentPeriod())
}

// GenerateForPeriod creates an unpaid bill for every student not yet
// billed in the period. Re-running is a no-op for already billed students.
func (s *BillingService) GenerateForPeriod(ctx context.Context, period string) (int, error) {
	if !models.ValidPeriod(period) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "period must be formatted YYYY-MM")
	}
	created, err := s.bills.InsertMissingForPeriod(ctx, period)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate bills")
	}
	s.logger.Info("bills generated", zap.String("period", period), zap.Int("created", created))
	return created, nil
}

// Pay transitions a bill from unpaid to paid, stamping the payment time.
// Paying an already paid bill is a conflict and leaves the timestamp alone.
func (s *BillingService) Pay(ctx context.Context, id string) (*models.Bill, error) {
	updated, err := s.bills.MarkPaid(ctx, id, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark bill paid")
	}
	bill, err := s.bills.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bill not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bill")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "bill is already paid")
	}
	return bill, nil
}

// Create registers a bill outside of the scheduled cycle.
func (s *BillingService) Create(ctx context.Context, req CreateBillRequest) (*models.Bill, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bill payload")
	}
	if !models.ValidPeriod(req.Period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period must be formatted YYYY-MM")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	amount := student.Fee
	if req.Amount != nil {
		amount = *req.Amount
	}
	bill := &models.Bill{
		StudentID: student.ID,
		Amount:    amount,
		Period:    req.Period,
		Status:    models.BillStatusUnpaid,
	}
	if err := s.bills.Create(ctx, bill); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bill already exists for this period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bill")
	}
	return bill, nil
}

// ListForStudent returns a student's bills, newest period first.
func (s *BillingService) ListForStudent(ctx context.Context, studentID string) ([]models.Bill, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	bills, err := s.bills.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bills")
	}
	return bills, nil
}

// StatusView reports every student's bill state for a period. An empty
// period defaults to the current one.
func (s *BillingService) StatusView(ctx context.Context, period string) ([]models.StudentBillStatus, error) {
	if period == "" {
		period = s.CurrentPeriod()
	}
	if !models.ValidPeriod(period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period must be formatted YYYY-MM")
	}
	rows, err := s.bills.StatusView(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bill status view")
	}
	return rows, nil
}

// RevertExpired moves bills paid longer ago than the window back to
// unpaid. Only the scheduler calls this, and only when reversion is
// enabled in configuration.
func (s *BillingService) RevertExpired(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "reversion window must be positive")
	}
	cutoff := s.now().UTC().Add(-window)
	reverted, err := s.bills.RevertExpired(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revert expired bills")
	}
	if reverted > 0 {
		s.logger.Info("expired bills reverted", zap.Int("reverted", reverted), zap.Time("cutoff", cutoff))
	}
	return reverted, nil
}
