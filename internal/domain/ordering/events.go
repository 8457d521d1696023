// Package ordering defines the event contract consumed from the order
// subsystem. The order pipeline itself is an external collaborator; the only
// thing the settlement core depends on is the "order item settled" fact below.
package ordering

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeOrderItemSettled = "ordering.order_item.settled"
)

// OrderItemSettledEvent is emitted by the order subsystem when an order item
// has completed and its monetary amounts are final. It is the sole inbound
// dependency of the balance ledger.
type OrderItemSettledEvent struct {
	shared.BaseDomainEvent
	OrderID        uuid.UUID       `json:"order_id"`
	OrderItemID    uuid.UUID       `json:"order_item_id"`
	OrderNumber    string          `json:"order_number"`
	SellerID       uuid.UUID       `json:"seller_id"`
	SellerClass    string          `json:"seller_class"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Currency       string          `json:"currency"`
}

// NewOrderItemSettledEvent creates a new order item settled event
func NewOrderItemSettledEvent(
	tenantID, orderID, orderItemID, sellerID uuid.UUID,
	orderNumber, sellerClass string,
	gross, commissionRate, taxRate decimal.Decimal,
	currency string,
) *OrderItemSettledEvent {
	return &OrderItemSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderItemSettled, "Order", orderID, tenantID),
		OrderID:         orderID,
		OrderItemID:     orderItemID,
		OrderNumber:     orderNumber,
		SellerID:        sellerID,
		SellerClass:     sellerClass,
		GrossAmount:     gross,
		CommissionRate:  commissionRate,
		TaxRate:         taxRate,
		Currency:        currency,
	}
}
