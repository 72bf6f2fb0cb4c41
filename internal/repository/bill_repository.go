package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dugsihub/dugsi-api/internal/models"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// BillRepository manages persistence for billing records.
type BillRepository struct {
	db *sqlx.DB
}

// NewBillRepository constructs a BillRepository.
func NewBillRepository(db *sqlx.DB) *BillRepository {
	return &BillRepository{db: db}
}

// InsertMissingForPeriod creates an unpaid bill for every student without
// one in the given period, freezing each amount at the student's current
// fee. The UNIQUE(student_id, period) constraint makes the pass idempotent
// and safe against concurrent runs. Returns the number of bills created.
func (r *BillRepository) InsertMissingForPeriod(ctx context.Context, period string) (int, error) {
	const query = `INSERT INTO bills (student_id, amount, period, status, created_at, updated_at)
        SELECT s.id, s.fee, $1, $2, $3, $3 FROM students s
        ON CONFLICT (student_id, period) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, period, models.BillStatusUnpaid, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("generate bills for %s: %w", period, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("generate bills rows: %w", err)
	}
	return int(affected), nil
}

// Create inserts a single bill. A duplicate (student, period) pair
// surfaces as a unique violation for the caller to classify.
func (r *BillRepository) Create(ctx context.Context, bill *models.Bill) error {
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	if bill.Status == "" {
		bill.Status = models.BillStatusUnpaid
	}
	const query = `INSERT INTO bills (id, student_id, amount, period, status, created_at, updated_at)
        VALUES (:id, :student_id, :amount, :period, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, bill); err != nil {
		return fmt.Errorf("create bill: %w", err)
	}
	return nil
}

// FindByID fetches a bill by ID.
func (r *BillRepository) FindByID(ctx context.Context, id string) (*models.Bill, error) {
	const query = `SELECT id, student_id, amount, period, status, last_paid_at, created_at, updated_at
        FROM bills WHERE id = $1`
	var bill models.Bill
	if err := r.db.GetContext(ctx, &bill, query, id); err != nil {
		return nil, err
	}
	return &bill, nil
}

// MarkPaid transitions a bill to paid, stamping the payment time. The
// status guard in the WHERE clause keeps a concurrent reversion sweep or
// a double submit from rewriting the payment timestamp. Returns false
// when the bill was not in the unpaid state.
func (r *BillRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	const query = `UPDATE bills SET status = $2, last_paid_at = $3, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.BillStatusPaid, paidAt, models.BillStatusUnpaid)
	if err != nil {
		return false, fmt.Errorf("mark bill paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark bill paid rows: %w", err)
	}
	return affected > 0, nil
}

// ListByStudent returns a student's bills, newest first.
func (r *BillRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Bill, error) {
	const query = `SELECT id, student_id, amount, period, status, last_paid_at, created_at, updated_at
        FROM bills WHERE student_id = $1 ORDER BY period DESC`
	var bills []models.Bill
	if err := r.db.SelectContext(ctx, &bills, query, studentID); err != nil {
		return nil, fmt.Errorf("list bills for student: %w", err)
	}
	return bills, nil
}

// StatusView joins every student with their bill state for a period.
// Students without a bill appear with the no-bill marker.
func (r *BillRepository) StatusView(ctx context.Context, period string) ([]models.StudentBillStatus, error) {
	const query = `SELECT s.id AS student_id, s.name AS student_name, s.class, s.fee,
        $1 AS period, b.id AS bill_id, COALESCE(b.status, $2) AS bill_status
        FROM students s
        LEFT JOIN bills b ON b.student_id = s.id AND b.period = $1
        ORDER BY s.name`
	var rows []models.StudentBillStatus
	if err := r.db.SelectContext(ctx, &rows, query, period, models.BillStatusNone); err != nil {
		return nil, fmt.Errorf("bill status view: %w", err)
	}
	return rows, nil
}

// RevertExpired flips bills back to unpaid when the payment is older than
// the cutoff. Returns the number of bills reverted.
func (r *BillRepository) RevertExpired(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `UPDATE bills SET status = $1, updated_at = $2
        WHERE status = $3 AND last_paid_at IS NOT NULL AND last_paid_at < $4`
	res, err := r.db.ExecContext(ctx, query, models.BillStatusUnpaid, time.Now().UTC(), models.BillStatusPaid, cutoff)
	if err != nil {
		return 0, fmt.Errorf("revert expired bills: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revert expired rows: %w", err)
	}
	return int(affected), nil
}

// Stats aggregates bill states for a period for dashboard consumption.
func (r *BillRepository) Stats(ctx context.Context, period string) (*models.BillingStats, error) {
	const query = `SELECT $1 AS period,
        COUNT(*) FILTER (WHERE b.status = $2) AS paid_count,
        COUNT(*) FILTER (WHERE b.status = $3) AS unpaid_count,
        COUNT(*) FILTER (WHERE b.id IS NULL) AS unbilled
        FROM students s
        LEFT JOIN bills b ON b.student_id = s.id AND b.period = $1`
	var stats models.BillingStats
	if err := r.db.GetContext(ctx, &stats, query, period, models.BillStatusPaid, models.BillStatusUnpaid); err != nil {
		return nil, fmt.Errorf("billing stats: %w", err)
	}
	return &stats, nil
}
