package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPLedger talks to the wallet service over its REST API. Every call is
// bounded by the client timeout; an expired or failed call surfaces as an
// error, never as a guessed outcome.
type HTTPLedger struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPLedger creates a ledger client with the given request timeout.
func NewHTTPLedger(baseURL string, timeout time.Duration) *HTTPLedger {
	return &HTTPLedger{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type ledgerRequest struct {
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type debitResponse struct {
	NewBalance int64 `json:"new_balance"`
}

// Debit charges the paying participant. A 402 from the wallet maps to the
// typed InsufficientFunds outcome.
func (l *HTTPLedger) Debit(ctx context.Context, payerID string, amount int64, idemKey string) (DebitResult, error) {
	resp, err := l.post(ctx, "/v1/debit", ledgerRequest{UserID: payerID, Amount: amount, IdempotencyKey: idemKey})
	if err != nil {
		return DebitResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body debitResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return DebitResult{}, fmt.Errorf("wallet debit: decode response: %w", err)
		}
		return DebitResult{Success: true, NewBalance: body.NewBalance}, nil
	case http.StatusPaymentRequired:
		return DebitResult{InsufficientFunds: true}, nil
	default:
		return DebitResult{}, fmt.Errorf("wallet debit: unexpected status %d", resp.StatusCode)
	}
}

// Credit pays the earner's share into their wallet.
func (l *HTTPLedger) Credit(ctx context.Context, earnerID string, amount int64, idemKey string) error {
	resp, err := l.post(ctx, "/v1/credit", ledgerRequest{UserID: earnerID, Amount: amount, IdempotencyKey: idemKey})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet credit: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (l *HTTPLedger) post(ctx context.Context, path string, payload ledgerRequest) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet call %s: %w", path, err)
	}
	return resp, nil
}
