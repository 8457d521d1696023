package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// BalanceSortFields contains allowed sort fields for seller balances
var BalanceSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"seller_id":  true,
	"status":     true,
	"net_amount": true,
	"settled_at": true,
}

// RunSortFields contains allowed sort fields for settlement runs
var RunSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"period_start": true,
	"period_end":   true,
	"status":       true,
	"net_amount":   true,
	"completed_at": true,
}

// PayoutSortFields contains allowed sort fields for payouts
var PayoutSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"seller_id":    true,
	"status":       true,
	"amount":       true,
	"completed_at": true,
}
