package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugsihub/dugsi-api/internal/models"
	appErrors "github.com/dugsihub/dugsi-api/pkg/errors"
)

// fakeBillRepo keeps bills in memory keyed by (student, period) so the
// uniqueness guarantee behaves like the real schema constraint.
type fakeBillRepo struct {
	students map[string]*models.Student
	bills    map[string]*models.Bill
	seq      int
}

func newFakeBillRepo(students ...*models.Student) *fakeBillRepo {
	repo := &fakeBillRepo{
		students: make(map[string]*models.Student),
		bills:    make(map[string]*models.Bill),
	}
	for _, s := range students {
		repo.students[s.ID] = s
	}
	return repo
}

func (f *fakeBillRepo) key(studentID, period string) string {
	return studentID + "|" + period
}

func (f *fakeBillRepo) InsertMissingForPeriod(_ context.Context, period string) (int, error) {
	created := 0
	for _, s := range f.students {
		key := f.key(s.ID, period)
		if _, exists := f.bills[key]; exists {
			continue
		}
		f.seq++
		f.bills[key] = &models.Bill{
			ID:        fmt.Sprintf("bill-%d", f.seq),
			StudentID: s.ID,
			Amount:    s.Fee,
			Period:    period,
			Status:    models.BillStatusUnpaid,
		}
		created++
	}
	return created, nil
}

func (f *fakeBillRepo) Create(_ context.Context, bill *models.Bill) error {
	key := f.key(bill.StudentID, bill.Period)
	if _, exists := f.bills[key]; exists {
		return &pq.Error{Code: "23505", Constraint: "bills_student_period_key"}
	}
	f.seq++
	bill.ID = fmt.Sprintf("bill-%d", f.seq)
	f.bills[key] = bill
	return nil
}

func (f *fakeBillRepo) FindByID(_ context.Context, id string) (*models.Bill, error) {
	for _, b := range f.bills {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBillRepo) MarkPaid(_ context.Context, id string, paidAt time.Time) (bool, error) {
	for _, b := range f.bills {
		if b.ID == id && b.Status == models.BillStatusUnpaid {
			b.Status = models.BillStatusPaid
			b.LastPaidAt = &paidAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBillRepo) ListByStudent(_ context.Context, studentID string) ([]models.Bill, error) {
	var out []models.Bill
	for _, b := range f.bills {
		if b.StudentID == studentID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBillRepo) StatusView(_ context.Context, period string) ([]models.StudentBillStatus, error) {
	var out []models.StudentBillStatus
	for _, s := range f.students {
		row := models.StudentBillStatus{
			StudentID:   s.ID,
			StudentName: s.Name,
			Class:       s.Class,
			Fee:         s.Fee,
			Period:      period,
			BillStatus:  models.BillStatusNone,
		}
		if b, ok := f.bills[f.key(s.ID, period)]; ok {
			id := b.ID
			row.BillID = &id
			row.BillStatus = string(b.Status)
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeBillRepo) RevertExpired(_ context.Context, cutoff time.Time) (int, error) {
	reverted := 0
	for _, b := range f.bills {
		if b.Status == models.BillStatusPaid && b.LastPaidAt != nil && b.LastPaidAt.Before(cutoff) {
			b.Status = models.BillStatusUnpaid
			reverted++
		}
	}
	return reverted, nil
}

type fakeStudentFinder struct {
	students map[string]*models.Student
}

func (f *fakeStudentFinder) FindByID(_ context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func newBillingFixture(students ...*models.Student) (*BillingService, *fakeBillRepo) {
	repo := newFakeBillRepo(students...)
	svc := NewBillingService(repo, &fakeStudentFinder{students: repo.students}, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestBillingServiceGenerateIsIdempotent(t *testing.T) {
	svc, repo := newBillingFixture(
		&models.Student{ID: "s1", Name: "Ayaan", Fee: 500},
		&models.Student{ID: "s2", Name: "Hodan", Fee: 450},
	)
	ctx := context.Background()

	created, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, repo.bills, 2)
}

func TestBillingServiceGenerateFreezesFee(t *testing.T) {
	student := &models.Student{ID: "s1", Name: "Ayaan", Fee: 500}
	svc, repo := newBillingFixture(student)
	ctx := context.Background()

	_, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)

	// A later fee change must not touch the already issued bill.
	student.Fee = 600
	created, err := svc.GenerateForPeriod(ctx, "2025-07")
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	assert.Equal(t, 500.0, repo.bills[repo.key("s1", "2025-06")].Amount)
	assert.Equal(t, 600.0, repo.bills[repo.key("s1", "2025-07")].Amount)
}

func TestBillingServiceGenerateSkipsExistingStates(t *testing.T) {
	svc, repo := newBillingFixture(
		&models.Student{ID: "s1", Fee: 500},
		&models.Student{ID: "s2", Fee: 450},
		&models.Student{ID: "s3", Fee: 400},
	)
	ctx := context.Background()

	_, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)
	paidAt := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	repo.bills[repo.key("s1", "2025-06")].Status = models.BillStatusPaid
	repo.bills[repo.key("s1", "2025-06")].LastPaidAt = &paidAt

	created, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, models.BillStatusPaid, repo.bills[repo.key("s1", "2025-06")].Status)
}

func TestBillingServiceGenerateRejectsBadPeriod(t *testing.T) {
	svc, _ := newBillingFixture()
	for _, period := range []string{"2025-13", "2025-6", "June 2025", ""} {
		_, err := svc.GenerateForPeriod(context.Background(), period)
		require.Error(t, err, period)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestBillingServiceCurrentPeriodUsesClock(t *testing.T) {
	svc, _ := newBillingFixture()
	assert.Equal(t, "2025-06", svc.CurrentPeriod())
}

func TestBillingServicePay(t *testing.T) {
	svc, repo := newBillingFixture(&models.Student{ID: "s1", Fee: 500})
	ctx := context.Background()
	_, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)
	billID := repo.bills[repo.key("s1", "2025-06")].ID

	bill, err := svc.Pay(ctx, billID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPaid, bill.Status)
	require.NotNil(t, bill.LastPaidAt)
	assert.Equal(t, svc.now().UTC(), *bill.LastPaidAt)
}

func TestBillingServicePayAlreadyPaidConflict(t *testing.T) {
	svc, repo := newBillingFixture(&models.Student{ID: "s1", Fee: 500})
	ctx := context.Background()
	_, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)
	billID := repo.bills[repo.key("s1", "2025-06")].ID

	first, err := svc.Pay(ctx, billID)
	require.NoError(t, err)
	firstPaidAt := *first.LastPaidAt

	// Second attempt conflicts and must not move the payment timestamp.
	svc.now = func() time.Time { return time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC) }
	_, err = svc.Pay(ctx, billID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, firstPaidAt, *repo.bills[repo.key("s1", "2025-06")].LastPaidAt)
}

func TestBillingServicePayNotFound(t *testing.T) {
	svc, _ := newBillingFixture()
	_, err := svc.Pay(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBillingServiceCreate(t *testing.T) {
	svc, _ := newBillingFixture(&models.Student{ID: "s1", Fee: 500})
	ctx := context.Background()

	bill, err := svc.Create(ctx, CreateBillRequest{StudentID: "s1", Period: "2025-06"})
	require.NoError(t, err)
	assert.Equal(t, 500.0, bill.Amount)
	assert.Equal(t, models.BillStatusUnpaid, bill.Status)

	// Explicit amounts override the student fee.
	amount := 250.0
	bill, err = svc.Create(ctx, CreateBillRequest{StudentID: "s1", Period: "2025-07", Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 250.0, bill.Amount)
}

func TestBillingServiceCreateDuplicateConflict(t *testing.T) {
	svc, _ := newBillingFixture(&models.Student{ID: "s1", Fee: 500})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateBillRequest{StudentID: "s1", Period: "2025-06"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateBillRequest{StudentID: "s1", Period: "2025-06"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBillingServiceCreateUnknownStudent(t *testing.T) {
	svc, _ := newBillingFixture()
	_, err := svc.Create(context.Background(), CreateBillRequest{StudentID: "missing", Period: "2025-06"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBillingServiceListForStudent(t *testing.T) {
	svc, _ := newBillingFixture(&models.Student{ID: "s1", Fee: 500})
	ctx := context.Background()
	_, err := svc.GenerateForPeriod(ctx, "2025-05")
	require.NoError(t, err)
	_, err = svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)

	bills, err := svc.ListForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, bills, 2)

	_, err = svc.ListForStudent(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBillingServiceStatusViewDefaultsToCurrentPeriod(t *testing.T) {
	svc, _ := newBillingFixture(
		&models.Student{ID: "s1", Name: "Ayaan", Fee: 500},
		&models.Student{ID: "s2", Name: "Hodan", Fee: 450},
	)
	ctx := context.Background()
	_, err := svc.GenerateForPeriod(ctx, "2025-06")
	require.NoError(t, err)

	rows, err := svc.StatusView(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "2025-06", row.Period)
		assert.Equal(t, string(models.BillStatusUnpaid), row.BillStatus)
	}
}

func TestBillingServiceStatusViewMarksUnbilled(t *testing.T) {
	svc, _ := newBillingFixture(&models.Student{ID: "s1", Name: "Ayaan", Fee: 500})
	rows, err := svc.StatusView(context.Background(), "2025-06")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].BillID)
	assert.Equal(t, models.BillStatusNone, rows[0].BillStatus)
}

func TestBillingServiceRevertExpired(t *testing.T) {
	svc, repo := newBillingFixture(
		&models.Student{ID: "s1", Fee: 500},
		&models.Student{ID: "s2", Fee: 450},
	)
	ctx := context.Background()
	_, err := svc.GenerateForPeriod(ctx, "2025-05")
	require.NoError(t, err)

	stale := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	repo.bills[repo.key("s1", "2025-05")].Status = models.BillStatusPaid
	repo.bills[repo.key("s1", "2025-05")].LastPaidAt = &stale
	repo.bills[repo.key("s2", "2025-05")].Status = models.BillStatusPaid
	repo.bills[repo.key("s2", "2025-05")].LastPaidAt = &fresh

	reverted, err := svc.RevertExpired(ctx, 720*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)
	assert.Equal(t, models.BillStatusUnpaid, repo.bills[repo.key("s1", "2025-05")].Status)
	assert.Equal(t, models.BillStatusPaid, repo.bills[repo.key("s2", "2025-05")].Status)
}

func TestBillingServiceRevertExpiredRejectsBadWindow(t *testing.T) {
	svc, _ := newBillingFixture()
	_, err := svc.RevertExpired(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
