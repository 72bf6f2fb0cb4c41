package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dugsihub/dugsi-api/internal/models"
)

// AttendanceRepository manages persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const insertAttendance = `INSERT INTO attendance (id, student_id, date, status, course, remarks, created_at)
        VALUES (:id, :student_id, :date, :status, :course, :remarks, :created_at)`

// Create inserts a single attendance record. Re-marking a (student, date)
// pair surfaces as a unique violation for the caller to classify.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, insertAttendance, record); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// CreateBatch inserts records inside one transaction. Any failure,
// including a duplicate (student, date) pair, rolls back the whole batch.
func (r *AttendanceRepository) CreateBatch(ctx context.Context, records []models.Attendance) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance batch: %w", err)
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertAttendance, records[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("create attendance batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance batch: %w", err)
	}
	return nil
}

// ListByStudent returns a student's attendance history, newest first,
// optionally bounded by a date range.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	query := `SELECT a.id, a.student_id, a.date, a.status, a.course, a.remarks, a.created_at,
        s.name AS student_name, s.class
        FROM attendance a JOIN students s ON s.id = a.student_id
        WHERE a.student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		query += fmt.Sprintf(" AND a.date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND a.date <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " ORDER BY a.date DESC"

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// Summary aggregates per-status counts for a student over a range.
func (r *AttendanceRepository) Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	query := `SELECT
        COUNT(*) FILTER (WHERE status = 'present') AS present,
        COUNT(*) FILTER (WHERE status = 'absent') AS absent,
        COUNT(*) FILTER (WHERE status = 'late') AS late,
        COUNT(*) FILTER (WHERE status = 'excused') AS excused,
        COUNT(*) AS total
        FROM attendance WHERE student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *to)
	}

	var row struct {
		Present int `db:"present"`
		Absent  int `db:"absent"`
		Late    int `db:"late"`
		Excused int `db:"excused"`
		Total   int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}

	summary := &models.AttendanceSummary{
		Present: row.Present,
		Absent:  row.Absent,
		Late:    row.Late,
		Excused: row.Excused,
		Total:   row.Total,
	}
	// Excused days do not count against the student.
	if counted := summary.Total - summary.Excused; counted > 0 {
		summary.Percent = float64(summary.Present) / float64(counted) * 100
	}
	return summary, nil
}

// ClassOnDate pairs every student in a class with their marked status for
// a date, unmarked students included.
func (r *AttendanceRepository) ClassOnDate(ctx context.Context, class string, date time.Time) ([]models.ClassAttendanceRow, error) {
	const query = `SELECT s.id AS student_id, s.name AS student_name, a.status, a.remarks
        FROM students s
        LEFT JOIN attendance a ON a.student_id = s.id AND a.date = $2
        WHERE s.class = $1
        ORDER BY s.name`
	var rows []models.ClassAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, class, date); err != nil {
		return nil, fmt.Errorf("class attendance: %w", err)
	}
	return rows, nil
}

// AbsentOnDate lists students in a class without a present record for a date.
func (r *AttendanceRepository) AbsentOnDate(ctx context.Context, class string, date time.Time) ([]models.Student, error) {
	const query = `SELECT s.id, s.name, s.phone, s.course, s.guardian_name, s.guardian_phone, s.class, s.fee, s.registered_at, s.created_at, s.updated_at
        FROM students s
        WHERE s.class = $1 AND NOT EXISTS (
            SELECT 1 FROM attendance a
            WHERE a.student_id = s.id AND a.date = $2 AND a.status = 'present'
        )
        ORDER BY s.name`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, class, date); err != nil {
		return nil, fmt.Errorf("absent students: %w", err)
	}
	return students, nil
}
