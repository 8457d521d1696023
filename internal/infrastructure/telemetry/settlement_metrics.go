package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
)

// SettlementMetrics counts settlement activity by listening to domain events.
// It subscribes to the event bus like any other handler, so the services
// publishing events need no knowledge of the metrics layer.
type SettlementMetrics struct {
	logger *zap.Logger

	balancesRecorded *Counter
	runsCompleted    *Counter
	runsFailed       *Counter
	payoutsCreated   *Counter
	payoutsSent      *Counter
	payoutsCompleted *Counter
	payoutsFailed    *Counter
	balancesSettled  *Counter
	netSettledAmount *Histogram
}

// NewSettlementMetrics creates the settlement metrics event handler.
func NewSettlementMetrics(meter metric.Meter, logger *zap.Logger) (*SettlementMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SettlementMetrics{logger: logger}

	var err error
	if sm.balancesRecorded, err = NewCounter(meter, "settlement.balances.recorded.total", "Seller balance lines recorded", "{balance}"); err != nil {
		return nil, err
	}
	if sm.runsCompleted, err = NewCounter(meter, "settlement.runs.completed.total", "Settlement runs completed", "{run}"); err != nil {
		return nil, err
	}
	if sm.runsFailed, err = NewCounter(meter, "settlement.runs.failed.total", "Settlement runs failed", "{run}"); err != nil {
		return nil, err
	}
	if sm.payoutsCreated, err = NewCounter(meter, "settlement.payouts.created.total", "Payouts created", "{payout}"); err != nil {
		return nil, err
	}
	if sm.payoutsSent, err = NewCounter(meter, "settlement.payouts.dispatched.total", "Payouts dispatched to the banking collaborator", "{payout}"); err != nil {
		return nil, err
	}
	if sm.payoutsCompleted, err = NewCounter(meter, "settlement.payouts.completed.total", "Payouts confirmed by the banking collaborator", "{payout}"); err != nil {
		return nil, err
	}
	if sm.payoutsFailed, err = NewCounter(meter, "settlement.payouts.failed.total", "Payouts rejected or failed", "{payout}"); err != nil {
		return nil, err
	}
	if sm.balancesSettled, err = NewCounter(meter, "settlement.balances.settled.total", "Balance lines claimed by completed runs", "{balance}"); err != nil {
		return nil, err
	}
	if sm.netSettledAmount, err = NewHistogram(meter, "settlement.runs.net_amount", "Net amount settled per run", "1"); err != nil {
		return nil, err
	}

	return sm, nil
}

// EventTypes returns the event types this handler listens for.
func (sm *SettlementMetrics) EventTypes() []string {
	return []string{
		settlement.EventTypeSellerBalanceRecorded,
		settlement.EventTypeSettlementRunCompleted,
		settlement.EventTypeSettlementRunFailed,
		settlement.EventTypePayoutCreated,
		settlement.EventTypePayoutDispatched,
		settlement.EventTypePayoutCompleted,
		settlement.EventTypePayoutFailed,
	}
}

// Handle increments the counter matching the event type.
func (sm *SettlementMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantAttr := AttrTenantID.String(event.TenantID().String())

	switch e := event.(type) {
	case *settlement.SellerBalanceRecordedEvent:
		sm.balancesRecorded.Inc(ctx, tenantAttr)
	case *settlement.SettlementRunCompletedEvent:
		sm.runsCompleted.Inc(ctx, tenantAttr)
		sm.balancesSettled.Add(ctx, int64(e.BalanceCount), tenantAttr)
		amount, _ := e.NetAmount.Float64()
		sm.netSettledAmount.Record(ctx, amount, tenantAttr)
	case *settlement.SettlementRunFailedEvent:
		sm.runsFailed.Inc(ctx, tenantAttr)
	case *settlement.PayoutCreatedEvent:
		sm.payoutsCreated.Inc(ctx, tenantAttr, AttrCurrency.String(e.Currency))
	case *settlement.PayoutDispatchedEvent:
		sm.payoutsSent.Inc(ctx, tenantAttr)
	case *settlement.PayoutCompletedEvent:
		sm.payoutsCompleted.Inc(ctx, tenantAttr)
	case *settlement.PayoutFailedEvent:
		sm.payoutsFailed.Inc(ctx, tenantAttr)
	default:
		// Subscribed by type name, so a mismatch here means a new event
		// shape was added without updating this switch.
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	return nil
}

var _ shared.EventHandler = (*SettlementMetrics)(nil)
