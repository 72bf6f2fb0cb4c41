package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugsihub/dugsi-api/internal/models"
	"github.com/dugsihub/dugsi-api/internal/service"
)

type attendanceRepoStub struct {
	create      func(record *models.Attendance) error
	createBatch func(records []models.Attendance) error
	summary     *models.AttendanceSummary
	classRows   []models.ClassAttendanceRow
	absent      []models.Student
}

func (s *attendanceRepoStub) Create(_ context.Context, record *models.Attendance) error {
	return s.create(record)
}

func (s *attendanceRepoStub) CreateBatch(_ context.Context, records []models.Attendance) error {
	return s.createBatch(records)
}

func (s *attendanceRepoStub) ListByStudent(_ context.Context, _ string, _, _ *time.Time) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (s *attendanceRepoStub) Summary(_ context.Context, _ string, _, _ *time.Time) (*models.AttendanceSummary, error) {
	return s.summary, nil
}

func (s *attendanceRepoStub) ClassOnDate(_ context.Context, _ string, _ time.Time) ([]models.ClassAttendanceRow, error) {
	return s.classRows, nil
}

func (s *attendanceRepoStub) AbsentOnDate(_ context.Context, _ string, _ time.Time) ([]models.Student, error) {
	return s.absent, nil
}

type classRosterStub struct {
	student *models.Student
	roster  []models.Student
}

func (s *classRosterStub) FindByID(_ context.Context, _ string) (*models.Student, error) {
	if s.student == nil {
		return nil, sql.ErrNoRows
	}
	return s.student, nil
}

func (s *classRosterStub) ListByClass(_ context.Context, _ string) ([]models.Student, error) {
	return s.roster, nil
}

func TestAttendanceHandlerMark(t *testing.T) {
	repo := &attendanceRepoStub{create: func(record *models.Attendance) error {
		record.ID = "att-1"
		return nil
	}}
	svc := service.NewAttendanceService(repo, &classRosterStub{student: &models.Student{ID: "s1"}}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	body := `{"student_id":"s1","date":"2025-06-02","status":"present"}`
	w := performRequest(t, http.MethodPost, "/attendance", body, h.Mark)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"present"`)
}

func TestAttendanceHandlerMarkDuplicate(t *testing.T) {
	repo := &attendanceRepoStub{create: func(*models.Attendance) error {
		return &pq.Error{Code: "23505", Constraint: "attendance_student_date_key"}
	}}
	svc := service.NewAttendanceService(repo, &classRosterStub{student: &models.Student{ID: "s1"}}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	body := `{"student_id":"s1","date":"2025-06-02","status":"present"}`
	w := performRequest(t, http.MethodPost, "/attendance", body, h.Mark)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAttendanceHandlerMarkBadStatus(t *testing.T) {
	svc := service.NewAttendanceService(&attendanceRepoStub{}, &classRosterStub{student: &models.Student{ID: "s1"}}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	body := `{"student_id":"s1","date":"2025-06-02","status":"vacation"}`
	w := performRequest(t, http.MethodPost, "/attendance", body, h.Mark)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerMarkBulk(t *testing.T) {
	repo := &attendanceRepoStub{createBatch: func([]models.Attendance) error { return nil }}
	roster := &classRosterStub{roster: []models.Student{{ID: "s1", Class: "Class 1"}, {ID: "s2", Class: "Class 1"}}}
	svc := service.NewAttendanceService(repo, roster, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	body := `{"class":"Class 1","date":"2025-06-02","entries":[{"student_id":"s1","status":"present"},{"student_id":"s2","status":"absent"}]}`
	w := performRequest(t, http.MethodPost, "/attendance/bulk", body, h.MarkBulk)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"marked":2`)
}

func TestAttendanceHandlerMarkBulkOutsideClass(t *testing.T) {
	roster := &classRosterStub{roster: []models.Student{{ID: "s1", Class: "Class 1"}}}
	svc := service.NewAttendanceService(&attendanceRepoStub{}, roster, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	body := `{"class":"Class 1","date":"2025-06-02","entries":[{"student_id":"intruder","status":"present"}]}`
	w := performRequest(t, http.MethodPost, "/attendance/bulk", body, h.MarkBulk)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerSummary(t *testing.T) {
	repo := &attendanceRepoStub{summary: &models.AttendanceSummary{Present: 8, Excused: 2, Total: 10, Percent: 100}}
	svc := service.NewAttendanceService(repo, &classRosterStub{student: &models.Student{ID: "s1"}}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	w := performRequest(t, http.MethodGet, "/attendance/student/s1/summary", "", h.Summary, gin.Param{Key: "id", Value: "s1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"present":8`)
}

func TestAttendanceHandlerHistoryBadRange(t *testing.T) {
	svc := service.NewAttendanceService(&attendanceRepoStub{}, &classRosterStub{student: &models.Student{ID: "s1"}}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	w := performRequest(t, http.MethodGet, "/attendance/student/s1?from=last-week", "", h.History, gin.Param{Key: "id", Value: "s1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerAbsent(t *testing.T) {
	repo := &attendanceRepoStub{absent: []models.Student{{ID: "s2", Name: "Hodan", Class: "Class 1"}}}
	svc := service.NewAttendanceService(repo, &classRosterStub{}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	w := performRequest(t, http.MethodGet, "/attendance/absent/Class%201/2025-06-02", "", h.Absent,
		gin.Param{Key: "class", Value: "Class 1"}, gin.Param{Key: "date", Value: "2025-06-02"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hodan")
}

func TestAttendanceHandlerAbsentBadDate(t *testing.T) {
	svc := service.NewAttendanceService(&attendanceRepoStub{}, &classRosterStub{}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	w := performRequest(t, http.MethodGet, "/attendance/absent/Class%201/yesterday", "", h.Absent,
		gin.Param{Key: "class", Value: "Class 1"}, gin.Param{Key: "date", Value: "yesterday"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerExportClass(t *testing.T) {
	present := models.AttendanceStatusPresent
	repo := &attendanceRepoStub{classRows: []models.ClassAttendanceRow{
		{StudentID: "s1", StudentName: "Ayaan", Status: &present},
	}}
	svc := service.NewAttendanceService(repo, &classRosterStub{}, nil, nil)
	exports := service.NewExportService(nil, repo, nil, nil, nil)
	h := NewAttendanceHandler(svc, exports)

	w := performRequest(t, http.MethodGet, "/attendance/class/Class%201/export?date=2025-06-02&format=csv", "", h.ExportClass,
		gin.Param{Key: "class", Value: "Class 1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=attendance-Class 1-2025-06-02.csv", w.Header().Get("Content-Disposition"))
	require.Contains(t, w.Body.String(), "Ayaan,present,")
}

func TestAttendanceHandlerMarkMissingStudent(t *testing.T) {
	svc := service.NewAttendanceService(&attendanceRepoStub{}, &classRosterStub{}, nil, nil)
	h := NewAttendanceHandler(svc, nil)

	body := `{"student_id":"ghost","date":"2025-06-02","status":"present"}`
	w := performRequest(t, http.MethodPost, "/attendance", body, h.Mark)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
