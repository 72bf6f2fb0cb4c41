package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dugsihub/dugsi-api/internal/models"
	appErrors "github.com/dugsihub/dugsi-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:snapshot"

type dashboardStudentRepository interface {
	Stats(ctx context.Context) (*models.RosterStats, error)
}

type dashboardBillRepository interface {
	Stats(ctx context.Context, period string) (*models.BillingStats, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DashboardSnapshot is the aggregate served to the admin front page.
type DashboardSnapshot struct {
	Roster      models.RosterStats  `json:"roster"`
	Billing     models.BillingStats `json:"billing"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// DashboardService assembles and caches the admin dashboard aggregate.
type DashboardService struct {
	students dashboardStudentRepository
	bills    dashboardBillRepository
	cache    dashboardCache
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(students dashboardStudentRepository, bills dashboardBillRepository, cache dashboardCache, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{students: students, bills: bills, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Snapshot returns the dashboard aggregate, serving from cache when fresh.
// The second return value reports a cache hit.
func (s *DashboardService) Snapshot(ctx context.Context) (*DashboardSnapshot, bool, error) {
	if s.cache != nil {
		var cached DashboardSnapshot
		err := s.cache.Get(ctx, dashboardCacheKey, &cached)
		if err == nil {
			return &cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	roster, err := s.students.Stats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster stats")
	}
	billing, err := s.bills.Stats(ctx, models.PeriodOf(s.now()))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load billing stats")
	}

	snapshot := &DashboardSnapshot{
		Roster:      *roster,
		Billing:     *billing,
		GeneratedAt: s.now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, snapshot, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return snapshot, false, nil
}

// Invalidate drops the cached snapshot so the next read recomputes it.
// Called after roster or billing mutations; the cache stays best-effort,
// so failures are logged and swallowed.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
