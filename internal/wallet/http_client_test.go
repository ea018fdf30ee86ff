package wallet_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokenchat/backend/internal/wallet"

	"github.com/stretchr/testify/assert"
)

func TestHTTPLedger_DebitSuccess(t *testing.T) {
	// Arrange
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/debit", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]int64{"new_balance": 82})
	}))
	defer server.Close()
	ledger := wallet.NewHTTPLedger(server.URL, time.Second)

	// Act
	res, err := ledger.Debit(context.Background(), "payer_1", 18, "msg_key_1")

	// Assert
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.InsufficientFunds)
	assert.Equal(t, int64(82), res.NewBalance)
	assert.Equal(t, "payer_1", got["user_id"])
	assert.Equal(t, float64(18), got["amount"])
	assert.Equal(t, "msg_key_1", got["idempotency_key"])
}

func TestHTTPLedger_DebitInsufficientFunds(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()
	ledger := wallet.NewHTTPLedger(server.URL, time.Second)

	// Act
	res, err := ledger.Debit(context.Background(), "payer_1", 30, "msg_key_2")

	// Assert - a 402 is a typed outcome, not an error
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.InsufficientFunds)
}

func TestHTTPLedger_DebitServerError(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	ledger := wallet.NewHTTPLedger(server.URL, time.Second)

	// Act
	res, err := ledger.Debit(context.Background(), "payer_1", 5, "msg_key_3")

	// Assert
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.InsufficientFunds)
}

func TestHTTPLedger_DebitTimeout(t *testing.T) {
	// Arrange - the wallet hangs past the client timeout
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)
	ledger := wallet.NewHTTPLedger(server.URL, 50*time.Millisecond)

	// Act
	_, err := ledger.Debit(context.Background(), "payer_1", 5, "msg_key_4")

	// Assert - an expired call is an error, never a guessed outcome
	assert.Error(t, err)
}

func TestHTTPLedger_Credit(t *testing.T) {
	// Arrange
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/credit", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	ledger := wallet.NewHTTPLedger(server.URL, time.Second)

	// Act
	err := ledger.Credit(context.Background(), "earner_1", 12, "msg_key_5")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "earner_1", got["user_id"])
	assert.Equal(t, float64(12), got["amount"])
}

func TestHTTPLedger_CreditNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	ledger := wallet.NewHTTPLedger(server.URL, time.Second)

	err := ledger.Credit(context.Background(), "earner_1", 12, "msg_key_6")

	assert.Error(t, err)
}
