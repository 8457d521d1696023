package banking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const transfersPath = "/v1/transfers"

// HTTPBankingGateway implements settlement.BankingGateway against the banking
// collaborator's REST API. The synchronous call only hands the instruction
// over; the transfer outcome arrives later on the result callback.
type HTTPBankingGateway struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPBankingGateway creates a new banking gateway client
func NewHTTPBankingGateway(cfg config.BankingConfig, logger *zap.Logger) *HTTPBankingGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBankingGateway{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type transferRequestBody struct {
	PayoutID      uuid.UUID       `json:"payout_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BankName      string          `json:"bank_name"`
	BankCode      string          `json:"bank_code,omitempty"`
	AccountName   string          `json:"account_name"`
	AccountNumber string          `json:"account_number"`
	Reference     string          `json:"reference"`
}

type transferResponseBody struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Transfer submits one transfer instruction. The idempotency key travels as a
// header, so retried submissions (including our own retries on 5xx) can never
// issue a second transfer.
func (g *HTTPBankingGateway) Transfer(ctx context.Context, req settlement.TransferRequest) (*settlement.TransferAck, error) {
	body := transferRequestBody{
		PayoutID:      req.PayoutID,
		TenantID:      req.TenantID,
		Amount:        req.Amount,
		Currency:      req.Currency.String(),
		BankName:      req.Destination.BankName,
		BankCode:      req.Destination.BankCode,
		AccountName:   req.Destination.AccountName,
		AccountNumber: req.Destination.AccountNumber,
		Reference:     req.Reference,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("banking: failed to marshal request: %w", err)
	}

	var lastErr error
	attempts := g.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", settlement.ErrBankingUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
			g.logger.Debug("retrying transfer submission",
				zap.String("payout_id", req.PayoutID.String()),
				zap.Int("attempt", attempt+1),
			)
		}

		ack, retryable, err := g.submit(ctx, req.IdempotencyKey, bodyBytes)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

// submit performs one HTTP round trip. The bool result reports whether the
// failure is worth retrying.
func (g *HTTPBankingGateway) submit(ctx context.Context, idempotencyKey string, body []byte) (*settlement.TransferAck, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("banking: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", settlement.ErrBankingUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", settlement.ErrBankingInvalidResponse, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: HTTP %d", settlement.ErrBankingUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		// transfer refused by the collaborator; an ack carries the reason so
		// the payout records it instead of retrying
		var parsed transferResponseBody
		_ = json.Unmarshal(respBody, &parsed)
		if parsed.Message == "" {
			parsed.Message = fmt.Sprintf("transfer refused with HTTP %d", resp.StatusCode)
		}
		return &settlement.TransferAck{
			ExternalTransactionID: parsed.TransactionID,
			Accepted:              false,
			Message:               parsed.Message,
		}, false, nil
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("%w: HTTP %d", settlement.ErrBankingInvalidRequest, resp.StatusCode)
	}

	var parsed transferResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: %v", settlement.ErrBankingInvalidResponse, err)
	}
	if parsed.TransactionID == "" {
		return nil, false, fmt.Errorf("%w: missing transaction id", settlement.ErrBankingInvalidResponse)
	}

	return &settlement.TransferAck{
		ExternalTransactionID: parsed.TransactionID,
		Accepted:              parsed.Status == "ACCEPTED",
		Message:               parsed.Message,
	}, false, nil
}

// Ensure HTTPBankingGateway implements BankingGateway
var _ settlement.BankingGateway = (*HTTPBankingGateway)(nil)
