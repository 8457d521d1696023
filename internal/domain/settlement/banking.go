package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Banking collaborator errors
var (
	ErrBankingUnavailable     = errors.New("banking: collaborator temporarily unavailable")
	ErrBankingRejected        = errors.New("banking: transfer rejected")
	ErrBankingInvalidRequest  = errors.New("banking: invalid transfer request")
	ErrBankingInvalidResponse = errors.New("banking: invalid collaborator response")
)

// TransferRequest is one outbound transfer instruction. The idempotency key
// must be honored by the collaborator: re-sending the same key must not issue
// a second transfer.
type TransferRequest struct {
	PayoutID       uuid.UUID
	TenantID       uuid.UUID
	Amount         decimal.Decimal
	Currency       valueobject.Currency
	Destination    BankAccount
	Reference      string
	IdempotencyKey string
}

// TransferAck is the collaborator's synchronous acknowledgement. The transfer
// itself completes asynchronously via a PayoutResultReceivedEvent.
type TransferAck struct {
	ExternalTransactionID string
	Accepted              bool
	Message               string
}

// BankingGateway is the port to the banking/payment collaborator. dispatch
// and result delivery are decoupled: Transfer only hands the instruction over;
// completion or failure arrives later as a callback event.
type BankingGateway interface {
	// Transfer submits one transfer instruction. Implementations must pass the
	// idempotency key through to the collaborator and must bound the call with
	// the context deadline.
	Transfer(ctx context.Context, req TransferRequest) (*TransferAck, error)
}
