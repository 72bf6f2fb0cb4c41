package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dugsihub/dugsi-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Class != "" {
		conditions = append(conditions, fmt.Sprintf("s.class = $%d", len(args)+1))
		args = append(args, filter.Class)
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("s.course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR s.phone LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":          "s.name",
		"class":         "s.class",
		"fee":           "s.fee",
		"registered_at": "s.registered_at",
	}
	if sortBy == "" {
		sortBy = "registered_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.name, s.phone, s.course, s.guardian_name, s.guardian_phone, s.class, s.fee, s.registered_at, s.created_at, s.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, name, phone, course, guardian_name, guardian_phone, class, fee, registered_at, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.RegisteredAt.IsZero() {
		student.RegisteredAt = now
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, phone, course, guardian_name, guardian_phone, class, fee, registered_at, created_at, updated_at)
        VALUES (:id, :name, :phone, :course, :guardian_name, :guardian_phone, :class, :fee, :registered_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, phone = :phone, course = :course, guardian_name = :guardian_name,
        guardian_phone = :guardian_phone, class = :class, fee = :fee, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student. Bills and attendance cascade at the schema level.
func (r *StudentRepository) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM students WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student rows: %w", err)
	}
	return affected > 0, nil
}

// Stats aggregates directory-wide counts for the dashboard.
func (r *StudentRepository) Stats(ctx context.Context) (*models.RosterStats, error) {
	stats := &models.RosterStats{}
	if err := r.db.GetContext(ctx, &stats.StudentCount, "SELECT COUNT(*) FROM students"); err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	if err := r.db.GetContext(ctx, &stats.TotalFee, "SELECT COALESCE(SUM(fee), 0) FROM students"); err != nil {
		return nil, fmt.Errorf("sum fees: %w", err)
	}
	if err := r.db.SelectContext(ctx, &stats.Courses, "SELECT course, COUNT(*) AS count FROM students GROUP BY course ORDER BY count DESC"); err != nil {
		return nil, fmt.Errorf("count courses: %w", err)
	}
	return stats, nil
}

// DistinctClasses returns the unique class labels in use.
func (r *StudentRepository) DistinctClasses(ctx context.Context) ([]string, error) {
	var classes []string
	if err := r.db.SelectContext(ctx, &classes, "SELECT DISTINCT class FROM students ORDER BY class"); err != nil {
		return nil, fmt.Errorf("distinct classes: %w", err)
	}
	return classes, nil
}

// ListByClass returns every student carrying the given class label.
func (r *StudentRepository) ListByClass(ctx context.Context, class string) ([]models.Student, error) {
	const query = `SELECT id, name, phone, course, guardian_name, guardian_phone, class, fee, registered_at, created_at, updated_at
        FROM students WHERE class = $1 ORDER BY name`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, class); err != nil {
		return nil, fmt.Errorf("list students by class: %w", err)
	}
	return students, nil
}
