package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/settlement"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type mockTenantSource struct {
	tenants []uuid.UUID
	err     error
}

func (m *mockTenantSource) TenantsWithPendingBalances(ctx context.Context) ([]uuid.UUID, error) {
	return m.tenants, m.err
}

type mockSettlementRunner struct {
	mu        sync.Mutex
	created   []uuid.UUID
	executed  []uuid.UUID
	createErr error
	execErr   error
	failExec  bool
}

func (m *mockSettlementRunner) CreateRun(ctx context.Context, tenantID uuid.UUID, runType settlement.RunType, periodStart, periodEnd time.Time) (*settlement.SettlementRun, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	run, err := settlement.NewSettlementRun(tenantID, runType, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.created = append(m.created, tenantID)
	m.mu.Unlock()
	return run, nil
}

func (m *mockSettlementRunner) Execute(ctx context.Context, tenantID, runID uuid.UUID) (*settlement.SettlementRun, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	run, err := settlement.NewSettlementRun(tenantID, settlement.RunTypeScheduled, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		return nil, err
	}
	if err := run.Start(); err != nil {
		return nil, err
	}
	if m.failExec {
		if err := run.Fail("boom"); err != nil {
			return nil, err
		}
	} else {
		if err := run.Complete(settlement.RunTotals{}); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.executed = append(m.executed, tenantID)
	m.mu.Unlock()
	return run, nil
}

func (m *mockSettlementRunner) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func (m *mockSettlementRunner) executedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executed)
}

type mockPayoutDispatcher struct {
	generated  atomic.Int32
	dispatched atomic.Int32
	genErr     error
}

func (m *mockPayoutDispatcher) GeneratePayouts(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.Payout, error) {
	if m.genErr != nil {
		return nil, m.genErr
	}
	m.generated.Add(1)
	return nil, nil
}

func (m *mockPayoutDispatcher) DispatchPending(ctx context.Context, tenantID, runID uuid.UUID) (int, error) {
	m.dispatched.Add(1)
	return 0, nil
}

func newTestScheduler(tenants *mockTenantSource, runner *mockSettlementRunner, payouts *mockPayoutDispatcher, config SettlementSchedulerConfig) *SettlementScheduler {
	return NewSettlementScheduler(runner, payouts, tenants, newTestLogger(), config)
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestDefaultSettlementSchedulerConfig(t *testing.T) {
	cfg := DefaultSettlementSchedulerConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Interval)
	assert.Equal(t, 10*time.Minute, cfg.RunTimeout)
	assert.False(t, cfg.AutoDispatch)
}

func TestSettlementSchedulerConfig_Validate(t *testing.T) {
	cfg := DefaultSettlementSchedulerConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Interval = time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Enabled = false
	assert.NoError(t, cfg.Validate(), "disabled scheduler skips interval validation")
}

// ---------------------------------------------------------------------------
// Lifecycle Tests
// ---------------------------------------------------------------------------

func TestSettlementScheduler_StartStop(t *testing.T) {
	tenants := &mockTenantSource{}
	runner := &mockSettlementRunner{}
	scheduler := newTestScheduler(tenants, runner, &mockPayoutDispatcher{}, DefaultSettlementSchedulerConfig())

	ctx := context.Background()

	require.NoError(t, scheduler.Start(ctx))
	assert.True(t, scheduler.IsRunning())

	// Start again is idempotent
	require.NoError(t, scheduler.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(stopCtx))
	assert.False(t, scheduler.IsRunning())

	// Stop again is idempotent
	require.NoError(t, scheduler.Stop(stopCtx))
}

func TestSettlementScheduler_StartDisabled(t *testing.T) {
	cfg := DefaultSettlementSchedulerConfig()
	cfg.Enabled = false
	scheduler := newTestScheduler(&mockTenantSource{}, &mockSettlementRunner{}, &mockPayoutDispatcher{}, cfg)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.False(t, scheduler.IsRunning())
}

func TestSettlementScheduler_StartInvalidConfig(t *testing.T) {
	cfg := DefaultSettlementSchedulerConfig()
	cfg.Interval = time.Millisecond
	scheduler := newTestScheduler(&mockTenantSource{}, &mockSettlementRunner{}, &mockPayoutDispatcher{}, cfg)

	assert.ErrorIs(t, scheduler.Start(context.Background()), ErrInvalidConfig)
}

func TestSettlementScheduler_TriggerImmediateRequiresRunning(t *testing.T) {
	scheduler := newTestScheduler(&mockTenantSource{}, &mockSettlementRunner{}, &mockPayoutDispatcher{}, DefaultSettlementSchedulerConfig())

	err := scheduler.TriggerImmediateCycle(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

// ---------------------------------------------------------------------------
// Cycle Tests
// ---------------------------------------------------------------------------

func TestSettlementScheduler_ExecuteCycle(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()
	tenants := &mockTenantSource{tenants: []uuid.UUID{tenantA, tenantB}}
	runner := &mockSettlementRunner{}
	payouts := &mockPayoutDispatcher{}
	scheduler := newTestScheduler(tenants, runner, payouts, DefaultSettlementSchedulerConfig())

	scheduler.executeCycle(context.Background(), time.Now().Add(-24*time.Hour), time.Now())

	assert.Equal(t, 2, runner.createdCount())
	assert.Equal(t, 2, runner.executedCount())
	assert.Equal(t, int32(0), payouts.generated.Load(), "auto dispatch disabled by default")
}

func TestSettlementScheduler_ExecuteCycleAutoDispatch(t *testing.T) {
	cfg := DefaultSettlementSchedulerConfig()
	cfg.AutoDispatch = true
	tenants := &mockTenantSource{tenants: []uuid.UUID{uuid.New()}}
	runner := &mockSettlementRunner{}
	payouts := &mockPayoutDispatcher{}
	scheduler := newTestScheduler(tenants, runner, payouts, cfg)

	scheduler.executeCycle(context.Background(), time.Now().Add(-24*time.Hour), time.Now())

	assert.Equal(t, int32(1), payouts.generated.Load())
	assert.Equal(t, int32(1), payouts.dispatched.Load())
}

func TestSettlementScheduler_AutoDispatchSkipsFailedRun(t *testing.T) {
	cfg := DefaultSettlementSchedulerConfig()
	cfg.AutoDispatch = true
	tenants := &mockTenantSource{tenants: []uuid.UUID{uuid.New()}}
	runner := &mockSettlementRunner{failExec: true}
	payouts := &mockPayoutDispatcher{}
	scheduler := newTestScheduler(tenants, runner, payouts, cfg)

	scheduler.executeCycle(context.Background(), time.Now().Add(-24*time.Hour), time.Now())

	assert.Equal(t, 1, runner.executedCount())
	assert.Equal(t, int32(0), payouts.generated.Load())
	assert.Equal(t, int32(0), payouts.dispatched.Load())
}

func TestSettlementScheduler_CycleContinuesAfterTenantFailure(t *testing.T) {
	tenants := &mockTenantSource{tenants: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	runner := &mockSettlementRunner{execErr: errors.New("claim failed")}
	scheduler := newTestScheduler(tenants, runner, &mockPayoutDispatcher{}, DefaultSettlementSchedulerConfig())

	scheduler.executeCycle(context.Background(), time.Now().Add(-24*time.Hour), time.Now())

	// Every tenant got a run created even though execution kept failing
	assert.Equal(t, 3, runner.createdCount())
	assert.Equal(t, 0, runner.executedCount())
}

func TestSettlementScheduler_CycleSkipsWhenNoTenants(t *testing.T) {
	tenants := &mockTenantSource{}
	runner := &mockSettlementRunner{}
	scheduler := newTestScheduler(tenants, runner, &mockPayoutDispatcher{}, DefaultSettlementSchedulerConfig())

	scheduler.executeCycle(context.Background(), time.Now().Add(-24*time.Hour), time.Now())

	assert.Equal(t, 0, runner.createdCount())
}

func TestSettlementScheduler_CycleTenantListFailure(t *testing.T) {
	tenants := &mockTenantSource{err: errors.New("db down")}
	runner := &mockSettlementRunner{}
	scheduler := newTestScheduler(tenants, runner, &mockPayoutDispatcher{}, DefaultSettlementSchedulerConfig())

	scheduler.executeCycle(context.Background(), time.Now().Add(-24*time.Hour), time.Now())

	assert.Equal(t, 0, runner.createdCount())
}

func TestSettlementScheduler_TriggerImmediateCycle(t *testing.T) {
	tenants := &mockTenantSource{tenants: []uuid.UUID{uuid.New()}}
	runner := &mockSettlementRunner{}
	scheduler := newTestScheduler(tenants, runner, &mockPayoutDispatcher{}, DefaultSettlementSchedulerConfig())

	ctx := context.Background()
	require.NoError(t, scheduler.Start(ctx))

	require.NoError(t, scheduler.TriggerImmediateCycle(ctx))

	assert.Eventually(t, func() bool {
		return runner.executedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(stopCtx))
}
