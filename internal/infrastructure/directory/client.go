package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/config"
)

// HTTPSellerDirectory implements settlement.SellerDirectory against the
// seller management collaborator's REST API.
type HTTPSellerDirectory struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSellerDirectory creates a new seller directory client
func NewHTTPSellerDirectory(cfg config.DirectoryConfig) *HTTPSellerDirectory {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSellerDirectory{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type payoutProfileBody struct {
	SellerID      uuid.UUID `json:"seller_id"`
	PaymentMethod string    `json:"payment_method"`
	BankAccount   struct {
		BankName      string `json:"bank_name"`
		BankCode      string `json:"bank_code"`
		AccountName   string `json:"account_name"`
		AccountNumber string `json:"account_number"`
	} `json:"bank_account"`
}

// PayoutProfile returns the payout destination for a seller.
// Returns shared.ErrNotFound when the seller has no profile.
func (d *HTTPSellerDirectory) PayoutProfile(ctx context.Context, tenantID, sellerID uuid.UUID) (*settlement.PayoutProfile, error) {
	url := fmt.Sprintf("%s/v1/tenants/%s/sellers/%s/payout-profile", d.baseURL, tenantID, sellerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, shared.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: unexpected status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to read response: %w", err)
	}

	var parsed payoutProfileBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("directory: failed to parse response: %w", err)
	}

	method := settlement.PaymentMethod(parsed.PaymentMethod)
	if !method.IsValid() {
		return nil, fmt.Errorf("directory: unknown payment method %q for seller %s", parsed.PaymentMethod, sellerID)
	}

	return &settlement.PayoutProfile{
		SellerID:      sellerID,
		PaymentMethod: method,
		BankAccount: settlement.BankAccount{
			BankName:      parsed.BankAccount.BankName,
			BankCode:      parsed.BankAccount.BankCode,
			AccountName:   parsed.BankAccount.AccountName,
			AccountNumber: parsed.BankAccount.AccountNumber,
		},
	}, nil
}

// Ensure HTTPSellerDirectory implements SellerDirectory
var _ settlement.SellerDirectory = (*HTTPSellerDirectory)(nil)
