package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestClient(url string) *HTTPClient {
	var cfg config.Config
	cfg.Gateway.BaseURL = url
	cfg.Gateway.SubscriptionKey = "sub-key"
	cfg.Gateway.BusinessID = "biz-1"
	return NewHTTPClient(&cfg)
}

func TestCreateVirtualAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, virtualAccountPath, r.URL.Path)
		require.Equal(t, "sub-key", r.Header.Get(subscriptionKeyHeader))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "biz-1", body["businessId"])
		require.Equal(t, "ORD-261014-001AB", body["orderId"])

		_, _ = w.Write([]byte(`{"success":true,"data":{"transactionId":"gw-1","virtualBankAccountNumber":"0123456789","virtualBankCode":"035","expiredAt":"2026-10-14T12:00:00Z","amount":10000,"currency":"NGN","orderId":"ORD-261014-001AB"}}`))
	}))
	defer srv.Close()

	va, err := newTestClient(srv.URL).CreateVirtualAccount(context.Background(), VirtualAccountRequest{
		Amount:   10000,
		Currency: "NGN",
		OrderID:  "ORD-261014-001AB",
		Customer: Customer{Email: "pat@example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, "gw-1", va.TransactionID)
	require.Equal(t, "0123456789", va.VirtualBankAccountNumber)
	require.Equal(t, "2026-10-14T12:00:00Z", va.ExpiredAt)
}

func TestGatewayErrorsAreUpstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"invalid business"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateVirtualAccount(context.Background(), VirtualAccountRequest{Amount: 1})
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "invalid business", be.Message)
}

func TestGetTransactionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, transactionStatusPath+"gw-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"gw-1","status":"completed","amount":10000}}`))
	}))
	defer srv.Close()

	st, err := newTestClient(srv.URL).GetTransactionStatus(context.Background(), "gw-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, st.Normalize())
}

func TestUnconfiguredClientFails(t *testing.T) {
	_, err := NewHTTPClient(&config.Config{}).GetTransactionStatus(context.Background(), "gw-1")
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))
}

func TestNormalize(t *testing.T) {
	tests := map[string]Outcome{
		"":           OutcomeCompleted,
		"COMPLETED":  OutcomeCompleted,
		"success":    OutcomeCompleted,
		"SUCCESSFUL": OutcomeCompleted,
		"PAID":       OutcomeCompleted,
		"FAILED":     OutcomeFailed,
		"declined":   OutcomeFailed,
		"CANCELLED":  OutcomeFailed,
		"PENDING":    OutcomePending,
		"PROCESSING": OutcomePending,
	}
	for status, want := range tests {
		require.Equal(t, want, (&TransactionStatus{Status: status}).Normalize(), status)
	}
}
