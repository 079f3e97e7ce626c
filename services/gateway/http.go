package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	virtualAccountPath    = "/bank-transfer/api/v1/bankTransfer/virtualAccount"
	transactionStatusPath = "/bank-transfer/api/v1/bankTransfer/transactions/"
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	defaultTimeout        = 30 * time.Second
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type HTTPClient struct {
	baseURL         string
	subscriptionKey string
	businessID      string
	http            *http.Client
}

func NewHTTPClient(cfg *config.Config) *HTTPClient {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		baseURL:         strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		subscriptionKey: cfg.Gateway.SubscriptionKey,
		businessID:      cfg.Gateway.BusinessID,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *HTTPClient) CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error) {
	log := logger.FromContext(ctx).With(zap.String("order_id", req.OrderID), zap.Int64("amount", req.Amount))

	body := struct {
		VirtualAccountRequest
		BusinessID string `json:"businessId"`
	}{req, c.businessID}

	var out envelope[VirtualAccount]
	if err := c.do(ctx, http.MethodPost, virtualAccountPath, body, &out); err != nil {
		log.Error("failed to generate virtual account", zap.Error(err))
		return nil, err
	}
	if out.Data == nil {
		return nil, errutil.BadGateway("gateway returned no virtual account", nil)
	}

	log.Info("virtual account generated", zap.String("gateway_transaction_id", out.Data.TransactionID))
	return out.Data, nil
}

func (c *HTTPClient) GetTransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	log := logger.FromContext(ctx).With(zap.String("gateway_transaction_id", transactionID))

	var out envelope[TransactionStatus]
	if err := c.do(ctx, http.MethodGet, transactionStatusPath+url.PathEscape(transactionID), nil, &out); err != nil {
		log.Error("failed to retrieve transaction status", zap.Error(err))
		return nil, err
	}
	if out.Data == nil {
		return nil, errutil.BadGateway("gateway returned no transaction", nil)
	}

	log.Info("transaction status retrieved", zap.String("status", out.Data.Status))
	return out.Data, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any, out any) error {
	if c.baseURL == "" || c.subscriptionKey == "" {
		return errutil.BadGateway("payment gateway is not configured", nil)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errutil.Internal("failed to encode gateway request", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errutil.Internal("failed to build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(subscriptionKeyHeader, c.subscriptionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errutil.BadGateway("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errutil.BadGateway("failed to read gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure envelope[json.RawMessage]
		_ = json.Unmarshal(raw, &failure)
		msg := failure.Message
		if msg == "" {
			msg = failure.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		return errutil.BadGateway(msg, fmt.Errorf("gateway responded %d", resp.StatusCode))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errutil.BadGateway("invalid gateway response", err)
	}
	return nil
}
