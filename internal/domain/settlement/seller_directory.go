package settlement

import (
	"context"

	"github.com/google/uuid"
)

// PayoutProfile is a seller's payout destination as maintained by the seller
// management collaborator
type PayoutProfile struct {
	SellerID      uuid.UUID
	PaymentMethod PaymentMethod
	BankAccount   BankAccount
}

// SellerDirectory is the port to the seller management collaborator. The
// payout generator uses it to resolve where a seller's money goes; seller
// onboarding and profile maintenance are out of scope.
type SellerDirectory interface {
	// PayoutProfile returns the payout destination for a seller.
	// Returns shared.ErrNotFound when the seller has no profile.
	PayoutProfile(ctx context.Context, tenantID, sellerID uuid.UUID) (*PayoutProfile, error)
}
