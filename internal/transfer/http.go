package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// providerName tags errors from the HTTP rail.
const providerName = "bank"

// HTTPProvider performs transfers against an external HTTP rail. Every
// failure is wrapped as a *domain.ProviderError so the engine schedules a
// retry; the idempotency key makes those retries safe.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates a provider posting to endpoint. client may be nil
// to use http.DefaultClient; per-call deadlines come from the context.
func NewHTTPProvider(endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{endpoint: endpoint, client: client}
}

type transferPayload struct {
	SourceAccountID    string  `json:"source_account_id"`
	TargetSubaccountID string  `json:"target_subaccount_id"`
	Amount             float64 `json:"amount"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error,omitempty"`
}

// PerformTransfer implements engine.TransferProvider.
func (p *HTTPProvider) PerformTransfer(ctx context.Context, req engine.TransferRequest) (*engine.TransferResult, error) {
	body, err := json.Marshal(transferPayload{
		SourceAccountID:    req.SourceAccountID,
		TargetSubaccountID: req.TargetSubaccountID,
		Amount:             req.Amount,
	})
	if err != nil {
		return nil, domain.NewProviderError(providerName, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewProviderError(providerName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewProviderError(providerName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewProviderError(providerName, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewProviderError(providerName, fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var parsed transferResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.NewProviderError(providerName, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != "" {
		return nil, domain.NewProviderError(providerName, fmt.Errorf("rail rejected transfer: %s", parsed.Error))
	}
	if parsed.TransactionID == "" {
		return nil, domain.NewProviderError(providerName, fmt.Errorf("response missing transaction_id"))
	}

	return &engine.TransferResult{ExternalTransactionID: parsed.TransactionID}, nil
}

var _ engine.TransferProvider = (*HTTPProvider)(nil)
