package consultation

import (
	"time"

	"medvive-settlement/services/gateway"
	"medvive-settlement/services/settlement"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

const PaymentMethodBankTransfer = "bank_transfer"

// Transaction is one payment attempt for a booked consultation. It is
// terminal once it leaves PENDING.
type Transaction struct {
	ID                    string         `gorm:"column:id;primaryKey" json:"id"`
	OrderID               string         `gorm:"column:order_id;uniqueIndex" json:"order_id"`
	ConsultationID        string         `gorm:"column:consultation_id;index" json:"consultation_id"`
	PatientID             string         `gorm:"column:patient_id" json:"patient_id"`
	ProviderID            string         `gorm:"column:provider_id" json:"provider_id"`
	Amount                int64          `gorm:"column:amount" json:"amount"`
	ProviderShare         int64          `gorm:"column:provider_share" json:"provider_share"`
	PlatformFee           int64          `gorm:"column:platform_fee" json:"platform_fee"`
	Currency              string         `gorm:"column:currency;type:varchar(3)" json:"currency"`
	Status                Status         `gorm:"column:status;index;type:varchar(20)" json:"status"`
	PaymentMethod         string         `gorm:"column:payment_method" json:"payment_method"`
	GatewayTransactionID  string         `gorm:"column:gateway_transaction_id" json:"gateway_transaction_id,omitempty"`
	GatewayAccountData    datatypes.JSON `gorm:"column:gateway_account_data" json:"gateway_account_data,omitempty"`
	GatewayError          string         `gorm:"column:gateway_error;type:text" json:"gateway_error,omitempty"`
	GatewayExpiresAt      *time.Time     `gorm:"column:gateway_expires_at" json:"gateway_expires_at,omitempty"`
	PaymentConfirmedAt    *time.Time     `gorm:"column:payment_confirmed_at" json:"payment_confirmed_at,omitempty"`
	ExpiredAt             *time.Time     `gorm:"column:expired_at" json:"expired_at,omitempty"`
	PendingReminderSentAt *time.Time     `gorm:"column:pending_reminder_sent_at" json:"pending_reminder_sent_at,omitempty"`
	StatusCheckFailed     bool           `gorm:"column:status_check_failed" json:"status_check_failed"`
	StatusCheckError      string         `gorm:"column:status_check_error;type:text" json:"status_check_error,omitempty"`
	LastStatusCheckAt     *time.Time     `gorm:"column:last_status_check_at" json:"last_status_check_at,omitempty"`
	PatientEmail          string         `gorm:"column:patient_email" json:"patient_email,omitempty"`
	PatientName           string         `gorm:"column:patient_name" json:"patient_name,omitempty"`
	ConsultationDate      string         `gorm:"column:consultation_date" json:"consultation_date,omitempty"`
	ConsultationTime      string         `gorm:"column:consultation_time" json:"consultation_time,omitempty"`
	CreatedAt             time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Transaction) TableName() string { return "consultation_transactions" }

func (t *Transaction) Linked() settlement.LinkedTransaction {
	return settlement.LinkedTransaction{
		ID:             t.ID,
		ConsultationID: t.ConsultationID,
		ProviderID:     t.ProviderID,
		PatientID:      t.PatientID,
		Amount:         t.Amount,
		ProviderShare:  t.ProviderShare,
		Currency:       t.Currency,
	}
}

type BookingStatus string

const (
	BookingPending BookingStatus = "PENDING"
	BookingActive  BookingStatus = "ACTIVE"
)

type Consultation struct {
	ID         string        `gorm:"column:id;primaryKey" json:"id"`
	PatientID  string        `gorm:"column:patient_id" json:"patient_id"`
	ProviderID string        `gorm:"column:provider_id" json:"provider_id"`
	Status     BookingStatus `gorm:"column:status;type:varchar(20)" json:"status"`
	BookedAt   *time.Time    `gorm:"column:booked_at" json:"booked_at,omitempty"`
	CreatedAt  time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (Consultation) TableName() string { return "consultations" }

type InitializeRequest struct {
	ConsultationID   string `json:"consultation_id" binding:"required"`
	ProviderID       string `json:"provider_id" binding:"required"`
	PatientID        string `json:"patient_id" binding:"required"`
	Amount           int64  `json:"amount" binding:"required"`
	Currency         string `json:"currency"`
	PatientEmail     string `json:"patient_email"`
	PatientName      string `json:"patient_name"`
	PatientPhone     string `json:"patient_phone"`
	ConsultationDate string `json:"consultation_date"`
	ConsultationTime string `json:"consultation_time"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConfirmResult struct {
	Transaction      *Transaction       `json:"transaction"`
	AlreadyProcessed bool               `json:"already_processed"`
	Outcome          gateway.Outcome    `json:"outcome,omitempty"`
	Payout           *settlement.Payout `json:"payout,omitempty"`
	Warnings         []Warning          `json:"warnings,omitempty"`
}

type jobPayload struct {
	TransactionID string `json:"transaction_id"`
	Force         bool   `json:"force,omitempty"`
}

func reminderJobID(txnID string) string { return "pending-reminder:" + txnID }
func expiryJobID(txnID string) string   { return "pending-expiry:" + txnID }
