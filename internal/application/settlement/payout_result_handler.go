package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// PayoutResultHandler consumes the banking collaborator's asynchronous
// transfer results. The callback transport (HTTP webhook, queue consumer)
// publishes a PayoutResultReceivedEvent and this handler closes the payout,
// keeping the banking protocol out of the payout lifecycle.
type PayoutResultHandler struct {
	payouts          *PayoutService
	idempotencyStore shared.IdempotencyStore
	idempotencyTTL   time.Duration
	logger           *zap.Logger
}

// NewPayoutResultHandler creates a new PayoutResultHandler
func NewPayoutResultHandler(
	payouts *PayoutService,
	idempotencyStore shared.IdempotencyStore,
	idempotencyTTL time.Duration,
	logger *zap.Logger,
) *PayoutResultHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idempotencyTTL <= 0 {
		idempotencyTTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &PayoutResultHandler{
		payouts:          payouts,
		idempotencyStore: idempotencyStore,
		idempotencyTTL:   idempotencyTTL,
		logger:           logger,
	}
}

// EventTypes returns the event types this handler subscribes to
func (h *PayoutResultHandler) EventTypes() []string {
	return []string{settlement.EventTypePayoutResultReceived}
}

// Handle processes a payout result event. Redelivered events are dropped via
// the idempotency store; HandleResult is additionally a no-op for terminal
// payouts, so a store miss cannot double-apply a result either.
func (h *PayoutResultHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*settlement.PayoutResultReceivedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T for %s", event, event.EventType())
	}

	eventKey := e.EventID().String()

	if h.idempotencyStore != nil {
		processed, err := h.idempotencyStore.IsProcessed(ctx, eventKey)
		if err != nil {
			h.logger.Warn("idempotency check failed, processing anyway",
				zap.String("event_id", eventKey),
				zap.Error(err),
			)
		} else if processed {
			h.logger.Info("skipping already processed payout result",
				zap.String("event_id", eventKey),
				zap.String("payout_id", e.PayoutID.String()),
			)
			return nil
		}
	}

	if _, err := h.payouts.HandleResult(ctx, e.TenantID(), e.PayoutID, e.Outcome, e.ExternalTransactionID, e.Reason); err != nil {
		return fmt.Errorf("failed to apply payout result: %w", err)
	}

	if h.idempotencyStore != nil {
		if _, err := h.idempotencyStore.MarkProcessed(ctx, eventKey, h.idempotencyTTL); err != nil {
			h.logger.Warn("failed to mark payout result processed",
				zap.String("event_id", eventKey),
				zap.Error(err),
			)
		}
	}

	return nil
}
