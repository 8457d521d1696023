package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"go.uber.org/zap"
)

// TenantSource lists the tenants that currently have claimable balances
type TenantSource interface {
	TenantsWithPendingBalances(ctx context.Context) ([]uuid.UUID, error)
}

// SettlementRunner creates and executes settlement runs. Satisfied by the
// application layer's SettlementService.
type SettlementRunner interface {
	CreateRun(ctx context.Context, tenantID uuid.UUID, runType settlement.RunType, periodStart, periodEnd time.Time) (*settlement.SettlementRun, error)
	Execute(ctx context.Context, tenantID, runID uuid.UUID) (*settlement.SettlementRun, error)
}

// PayoutDispatcher generates and dispatches payouts for completed runs.
// Satisfied by the application layer's PayoutService.
type PayoutDispatcher interface {
	GeneratePayouts(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.Payout, error)
	DispatchPending(ctx context.Context, tenantID, runID uuid.UUID) (int, error)
}

// SettlementSchedulerConfig holds configuration for the settlement scheduler
type SettlementSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Interval is how often a settlement cycle fires. Each cycle covers the
	// period since the previous one.
	Interval time.Duration

	// RunTimeout is the maximum time for one tenant's settlement run
	RunTimeout time.Duration

	// AutoDispatch generates and dispatches payouts right after a cycle's
	// runs complete
	AutoDispatch bool
}

// DefaultSettlementSchedulerConfig returns default configuration
func DefaultSettlementSchedulerConfig() SettlementSchedulerConfig {
	return SettlementSchedulerConfig{
		Enabled:      true,
		Interval:     24 * time.Hour,
		RunTimeout:   10 * time.Minute,
		AutoDispatch: false,
	}
}

// Validate checks the configuration
func (c SettlementSchedulerConfig) Validate() error {
	if c.Enabled && c.Interval < time.Minute {
		return ErrInvalidConfig
	}
	return nil
}

// SettlementScheduler fires scheduled settlement runs for every tenant with
// claimable balances. A manually triggered run racing a scheduled one is safe:
// the claim matches each balance line at most once, so the loser of the race
// simply totals fewer lines.
type SettlementScheduler struct {
	settlements SettlementRunner
	payouts     PayoutDispatcher
	tenants     TenantSource
	logger      *zap.Logger
	config      SettlementSchedulerConfig
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
}

// NewSettlementScheduler creates a new settlement scheduler
func NewSettlementScheduler(
	settlements SettlementRunner,
	payouts PayoutDispatcher,
	tenants TenantSource,
	logger *zap.Logger,
	config SettlementSchedulerConfig,
) *SettlementScheduler {
	return &SettlementScheduler{
		settlements: settlements,
		payouts:     payouts,
		tenants:     tenants,
		logger:      logger,
		config:      config,
	}
}

// Start starts the settlement scheduler
func (s *SettlementScheduler) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("settlement scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("settlement scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("auto_dispatch", s.config.AutoDispatch),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *SettlementScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("settlement scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("settlement scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *SettlementScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// TriggerImmediateCycle runs one settlement cycle now, outside the interval
func (s *SettlementScheduler) TriggerImmediateCycle(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("triggering immediate settlement cycle")

	go func() {
		defer s.wg.Done()
		s.executeCycle(ctx, time.Now().Add(-s.config.Interval), time.Now())
	}()

	return nil
}

func (s *SettlementScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	lastCycle := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("settlement cycle loop stopping")
			return
		case now := <-ticker.C:
			s.executeCycle(ctx, lastCycle, now)
			lastCycle = now
		}
	}
}

// executeCycle creates and executes one scheduled run per tenant with pending
// balances, covering [periodStart, periodEnd]
func (s *SettlementScheduler) executeCycle(ctx context.Context, periodStart, periodEnd time.Time) {
	startedAt := time.Now()

	tenantIDs, err := s.tenants.TenantsWithPendingBalances(ctx)
	if err != nil {
		s.logger.Error("failed to list tenants for settlement cycle", zap.Error(err))
		return
	}
	if len(tenantIDs) == 0 {
		s.logger.Debug("settlement cycle found no tenants with pending balances")
		return
	}

	var completed, failed int
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			return
		}
		if err := s.settleTenant(ctx, tenantID, periodStart, periodEnd); err != nil {
			failed++
			s.logger.Error("scheduled settlement run failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		completed++
	}

	s.logger.Info("settlement cycle completed",
		zap.Duration("duration", time.Since(startedAt)),
		zap.Int("tenants", len(tenantIDs)),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
}

func (s *SettlementScheduler) settleTenant(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) error {
	runCtx := ctx
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	run, err := s.settlements.CreateRun(runCtx, tenantID, settlement.RunTypeScheduled, periodStart, periodEnd)
	if err != nil {
		return err
	}

	executed, err := s.settlements.Execute(runCtx, tenantID, run.ID)
	if err != nil {
		return err
	}

	s.logger.Info("scheduled settlement run completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", run.ID.String()),
		zap.Int("balances", executed.BalanceCount),
		zap.String("net_amount", executed.NetAmount.String()),
	)

	if !s.config.AutoDispatch || !executed.IsCompleted() {
		return nil
	}

	created, err := s.payouts.GeneratePayouts(runCtx, tenantID, run.ID)
	if err != nil {
		return err
	}
	dispatched, err := s.payouts.DispatchPending(runCtx, tenantID, run.ID)
	if err != nil {
		return err
	}

	s.logger.Info("scheduled payouts dispatched",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", run.ID.String()),
		zap.Int("created", len(created)),
		zap.Int("dispatched", dispatched),
	)

	return nil
}
