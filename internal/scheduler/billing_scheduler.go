package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dugsihub/dugsi-api/pkg/config"
)

type billingService interface {
	GenerateCurrent(ctx context.Context) (int, error)
	RevertExpired(ctx context.Context, window time.Duration) (int, error)
}

type billingMetrics interface {
	AddBillsGenerated(n int)
	AddBillsReverted(n int)
}

// BillingScheduler fires the billing cycle on a wall-clock schedule.
// Generation is idempotent, so a missed or doubled firing is harmless;
// a catch-up pass at Start closes any gap from downtime.
type BillingScheduler struct {
	billing billingService
	metrics billingMetrics
	cfg     config.BillingConfig
	logger  *zap.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	started bool
	catchUp sync.WaitGroup
}

// NewBillingScheduler constructs the scheduler. Nothing runs until Start.
func NewBillingScheduler(billing billingService, metrics billingMetrics, cfg config.BillingConfig, logger *zap.Logger) *BillingScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingScheduler{billing: billing, metrics: metrics, cfg: cfg, logger: logger}
}

// Start registers the cron entry and begins firing. Safe to call once.
func (s *BillingScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	job := cron.NewChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	).Then(cron.FuncJob(s.runCycle))

	s.cron = cron.New()
	if _, err := s.cron.AddJob(s.cfg.Schedule, job); err != nil {
		return err
	}

	// The catch-up shares the wrapped job, so it cannot overlap a cron
	// firing, and Stop waits for it like any other cycle.
	if s.cfg.RunOnStart {
		s.catchUp.Add(1)
		go func() {
			defer s.catchUp.Done()
			job.Run()
		}()
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("billing scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Bool("reversion_enabled", s.cfg.ReversionEnabled))
	return nil
}

// Stop halts scheduling and waits for a running cycle to finish.
func (s *BillingScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.catchUp.Wait()
	s.started = false
	s.logger.Info("billing scheduler stopped")
}

// runCycle executes one firing: generation, then reversion when enabled.
// Errors are logged, never propagated; the next firing proceeds normally.
func (s *BillingScheduler) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	created, err := s.billing.GenerateCurrent(ctx)
	if err != nil {
		s.logger.Error("bill generation failed", zap.Error(err))
	} else {
		if s.metrics != nil {
			s.metrics.AddBillsGenerated(created)
		}
		s.logger.Info("bill generation cycle completed", zap.Int("created", created))
	}

	if !s.cfg.ReversionEnabled {
		return
	}

	reverted, err := s.billing.RevertExpired(ctx, s.cfg.ReversionWindow)
	if err != nil {
		s.logger.Error("bill reversion failed", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.AddBillsReverted(reverted)
	}
	if reverted > 0 {
		s.logger.Info("bill reversion cycle completed", zap.Int("reverted", reverted))
	}
}
