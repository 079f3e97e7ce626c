package gateway

import (
	"context"
	"strings"
)

//go:generate mockgen -source=client.go -destination=mock/client.go -package=mock

// Client is the payment gateway used to collect consultation fees by bank
// transfer into a per-order virtual account.
type Client interface {
	CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error)
	GetTransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error)
}

type Customer struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Metadata  string `json:"metadata,omitempty"`
}

type VirtualAccountRequest struct {
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	OrderID     string   `json:"orderId"`
	Description string   `json:"description"`
	Customer    Customer `json:"customer"`
}

type VirtualAccount struct {
	ID                       string  `json:"id"`
	MerchantID               string  `json:"merchantId"`
	VirtualBankCode          string  `json:"virtualBankCode"`
	VirtualBankAccountNumber string  `json:"virtualBankAccountNumber"`
	BusinessBankCode         string  `json:"businessBankCode"`
	TransactionID            string  `json:"transactionId"`
	Status                   string  `json:"status"`
	ExpiredAt                string  `json:"expiredAt"`
	CreatedAt                string  `json:"createdAt"`
	BusinessID               string  `json:"businessId"`
	Amount                   float64 `json:"amount"`
	Currency                 string  `json:"currency"`
	OrderID                  string  `json:"orderId"`
	Description              string  `json:"description"`
}

type TransactionStatus struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transactionId"`
	OrderID       string  `json:"orderId"`
	Amount        float64 `json:"amount"`
	AmountSent    float64 `json:"amountSent"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	StatusReason  string  `json:"statusReason"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomePending   Outcome = "PENDING"
)

// Normalize maps a gateway status onto a transaction outcome. An empty
// status on a successful lookup counts as completed.
func (s *TransactionStatus) Normalize() Outcome {
	switch strings.ToUpper(strings.TrimSpace(s.Status)) {
	case "", "COMPLETED", "SUCCESS", "SUCCESSFUL", "PAID":
		return OutcomeCompleted
	case "FAILED", "DECLINED", "CANCELLED":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
