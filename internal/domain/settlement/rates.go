package settlement

import (
	"github.com/shopspring/decimal"
)

// RateTable maps seller classes to default commission rates, used when the
// originating order event does not carry an explicit rate. Tax rates always
// come from the order event; they depend on jurisdiction, not seller class.
type RateTable map[SellerClass]decimal.Decimal

// DefaultRateTable returns the platform's standard commission rates
func DefaultRateTable() RateTable {
	return RateTable{
		SellerClassStandard:   decimal.RequireFromString("0.15"),
		SellerClassPremium:    decimal.RequireFromString("0.10"),
		SellerClassEnterprise: decimal.RequireFromString("0.07"),
	}
}

// CommissionRateFor returns the commission rate for a seller class, falling
// back to the standard rate for unknown classes
func (t RateTable) CommissionRateFor(class SellerClass) decimal.Decimal {
	if rate, ok := t[class]; ok {
		return rate
	}
	return t[SellerClassStandard]
}
