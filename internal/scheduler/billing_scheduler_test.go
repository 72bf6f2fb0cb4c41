package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugsihub/dugsi-api/pkg/config"
)

type fakeBilling struct {
	mu        sync.Mutex
	generated int
	reverted  int
	genErr    error
	window    time.Duration
	fired     chan struct{}
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{fired: make(chan struct{}, 16)}
}

func (f *fakeBilling) GenerateCurrent(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired <- struct{}{}
	if f.genErr != nil {
		return 0, f.genErr
	}
	f.generated++
	return 3, nil
}

func (f *fakeBilling) RevertExpired(_ context.Context, window time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverted++
	f.window = window
	return 1, nil
}

func (f *fakeBilling) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generated, f.reverted
}

type fakeMetrics struct {
	mu        sync.Mutex
	generated int
	reverted  int
}

func (f *fakeMetrics) AddBillsGenerated(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated += n
}

func (f *fakeMetrics) AddBillsReverted(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverted += n
}

func waitForFiring(t *testing.T, billing *fakeBilling) {
	t.Helper()
	select {
	case <-billing.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not fire")
	}
}

func TestBillingSchedulerRunsCatchUpOnStart(t *testing.T) {
	billing := newFakeBilling()
	metrics := &fakeMetrics{}
	s := NewBillingScheduler(billing, metrics, config.BillingConfig{
		Schedule:   "0 0 1 * *",
		RunOnStart: true,
	}, nil)

	require.NoError(t, s.Start())
	defer s.Stop()
	waitForFiring(t, billing)

	assert.Eventually(t, func() bool {
		generated, _ := billing.counts()
		return generated == 1
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.generated == 3
	}, time.Second, 10*time.Millisecond)
}

type blockingBilling struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBilling) GenerateCurrent(_ context.Context) (int, error) {
	close(b.entered)
	<-b.release
	return 0, nil
}

func (b *blockingBilling) RevertExpired(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func TestBillingSchedulerStopDrainsCatchUp(t *testing.T) {
	billing := &blockingBilling{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewBillingScheduler(billing, nil, config.BillingConfig{
		Schedule:   "0 0 1 * *",
		RunOnStart: true,
	}, nil)

	require.NoError(t, s.Start())

	select {
	case <-billing.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("catch-up cycle did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// Stop must stay blocked while the catch-up cycle is mid-flight.
	select {
	case <-stopped:
		t.Fatal("Stop returned while the catch-up cycle was still running")
	case <-time.After(200 * time.Millisecond):
	}

	close(billing.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}
}

func TestBillingSchedulerSkipsReversionWhenDisabled(t *testing.T) {
	billing := newFakeBilling()
	s := NewBillingScheduler(billing, nil, config.BillingConfig{
		Schedule:         "0 0 1 * *",
		RunOnStart:       true,
		ReversionEnabled: false,
	}, nil)

	require.NoError(t, s.Start())
	defer s.Stop()
	waitForFiring(t, billing)

	assert.Never(t, func() bool {
		_, reverted := billing.counts()
		return reverted > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestBillingSchedulerRevertsWhenEnabled(t *testing.T) {
	billing := newFakeBilling()
	s := NewBillingScheduler(billing, nil, config.BillingConfig{
		Schedule:         "0 0 1 * *",
		RunOnStart:       true,
		ReversionEnabled: true,
		ReversionWindow:  720 * time.Hour,
	}, nil)

	require.NoError(t, s.Start())
	defer s.Stop()
	waitForFiring(t, billing)

	assert.Eventually(t, func() bool {
		_, reverted := billing.counts()
		return reverted == 1
	}, time.Second, 10*time.Millisecond)

	billing.mu.Lock()
	defer billing.mu.Unlock()
	assert.Equal(t, 720*time.Hour, billing.window)
}

func TestBillingSchedulerToleratesGenerationFailure(t *testing.T) {
	billing := newFakeBilling()
	billing.genErr = errors.New("db unavailable")
	s := NewBillingScheduler(billing, nil, config.BillingConfig{
		Schedule:         "0 0 1 * *",
		RunOnStart:       true,
		ReversionEnabled: true,
		ReversionWindow:  time.Hour,
	}, nil)

	require.NoError(t, s.Start())
	defer s.Stop()
	waitForFiring(t, billing)

	// Generation failing must not stop the reversion pass.
	assert.Eventually(t, func() bool {
		_, reverted := billing.counts()
		return reverted == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBillingSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewBillingScheduler(newFakeBilling(), nil, config.BillingConfig{
		Schedule: "not a schedule",
	}, nil)
	assert.Error(t, s.Start())
}

func TestBillingSchedulerStartIsIdempotent(t *testing.T) {
	billing := newFakeBilling()
	s := NewBillingScheduler(billing, nil, config.BillingConfig{
		Schedule: "0 0 1 * *",
	}, nil)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()

	generated, _ := billing.counts()
	assert.Zero(t, generated)
}
