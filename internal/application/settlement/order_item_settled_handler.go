package settlement

import (
	"context"
	"fmt"

	"github.com/marketplace/backend/internal/domain/ordering"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// OrderItemSettledHandler consumes OrderItemSettledEvent from the order
// subsystem and records the corresponding earning line in the balance ledger.
// Consumption is idempotent: an order item produces at most one balance line
// no matter how often the event is delivered.
type OrderItemSettledHandler struct {
	ledger      *LedgerService
	balanceRepo settlement.SellerBalanceRepository
	logger      *zap.Logger
}

// NewOrderItemSettledHandler creates a new handler for order item settled events
func NewOrderItemSettledHandler(
	ledger *LedgerService,
	balanceRepo settlement.SellerBalanceRepository,
	logger *zap.Logger,
) *OrderItemSettledHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderItemSettledHandler{
		ledger:      ledger,
		balanceRepo: balanceRepo,
		logger:      logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *OrderItemSettledHandler) EventTypes() []string {
	return []string{ordering.EventTypeOrderItemSettled}
}

// Handle processes an OrderItemSettledEvent by recording a seller balance
func (h *OrderItemSettledHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	settled, ok := event.(*ordering.OrderItemSettledEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", ordering.EventTypeOrderItemSettled),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			ordering.EventTypeOrderItemSettled, event.EventType())
	}

	h.logger.Info("processing order item settled event",
		zap.String("order_id", settled.OrderID.String()),
		zap.String("order_item_id", settled.OrderItemID.String()),
		zap.String("seller_id", settled.SellerID.String()),
		zap.String("gross_amount", settled.GrossAmount.String()),
	)

	exists, err := h.balanceRepo.ExistsByOrderItem(ctx, settled.TenantID(), settled.OrderItemID)
	if err != nil {
		return fmt.Errorf("failed to check existing balance: %w", err)
	}
	if exists {
		h.logger.Warn("balance already recorded for order item, skipping",
			zap.String("order_item_id", settled.OrderItemID.String()),
		)
		return nil // idempotent, already processed
	}

	currency := valueobject.Currency(settled.Currency)
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	gross, err := valueobject.NewMoney(settled.GrossAmount, currency)
	if err != nil {
		return fmt.Errorf("invalid gross amount on event %s: %w", settled.EventID(), err)
	}

	orderID := settled.OrderID
	orderItemID := settled.OrderItemID
	commissionRate := settled.CommissionRate

	_, err = h.ledger.RecordEarning(ctx, RecordEarningCommand{
		TenantID: settled.TenantID(),
		SellerID: settled.SellerID,
		OrderRef: settlement.OrderRef{
			OrderID:     &orderID,
			OrderItemID: &orderItemID,
			OrderNumber: settled.OrderNumber,
		},
		Gross:          gross,
		CommissionRate: &commissionRate,
		TaxRate:        settled.TaxRate,
		SellerClass:    settlement.SellerClass(settled.SellerClass),
		Description:    fmt.Sprintf("earning for order %s", settled.OrderNumber),
	})
	if err != nil {
		h.logger.Error("failed to record earning from order event",
			zap.String("order_item_id", settled.OrderItemID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to record earning: %w", err)
	}

	return nil
}
