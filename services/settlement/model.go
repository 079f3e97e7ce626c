package settlement

import "time"

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutCompleted PayoutStatus = "COMPLETED"
	PayoutRejected  PayoutStatus = "REJECTED"
)

const (
	TypeConsultationEarnings = "CONSULTATION_EARNINGS"
	SourceConsultationPayout = "consultation_payout"
	DefaultRejectReason      = "Rejected"
)

// Payout is a provider's earned share waiting for a decision. It transitions
// exactly once, to COMPLETED or REJECTED.
type Payout struct {
	ID                  string       `gorm:"column:id;primaryKey" json:"id"`
	Type                string       `gorm:"column:type;type:varchar(40)" json:"type"`
	ProviderID          string       `gorm:"column:provider_id;index:idx_payout_lookup" json:"provider_id"`
	PatientID           string       `gorm:"column:patient_id" json:"patient_id"`
	ConsultationID      string       `gorm:"column:consultation_id;index:idx_payout_lookup" json:"consultation_id"`
	LinkedTransactionID string       `gorm:"column:linked_transaction_id;index" json:"linked_transaction_id,omitempty"`
	Amount              int64        `gorm:"column:amount" json:"amount"`
	Currency            string       `gorm:"column:currency;type:varchar(3)" json:"currency"`
	Status              PayoutStatus `gorm:"column:status;index:idx_payout_lookup;type:varchar(20)" json:"status"`
	RejectReason        string       `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	ProcessedBy         string       `gorm:"column:processed_by" json:"processed_by,omitempty"`
	CompletedAt         *time.Time   `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RejectedAt          *time.Time   `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	CreatedAt           time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (Payout) TableName() string { return "wallet_transactions" }

// ProviderFee is the configured consultation rate of a provider.
type ProviderFee struct {
	ProviderID      string    `gorm:"column:provider_id;primaryKey" json:"provider_id"`
	ConsultationFee int64     `gorm:"column:consultation_fee" json:"consultation_fee"`
	Currency        string    `gorm:"column:currency;type:varchar(3)" json:"currency"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ProviderFee) TableName() string { return "provider_fees" }

// LinkedTransaction is the fee breakdown of the consultation payment a
// payout settles.
type LinkedTransaction struct {
	ID             string
	ConsultationID string
	ProviderID     string
	PatientID      string
	Amount         int64
	ProviderShare  int64
	Currency       string
}

type PendingPayoutRequest struct {
	ConsultationID string `json:"consultation_id"`
	ProviderID     string `json:"provider_id"`
	PatientID      string `json:"patient_id"`
	// Amount overrides every other source when positive.
	Amount   int64              `json:"amount"`
	Currency string             `json:"currency"`
	Linked   *LinkedTransaction `json:"-"`
}

func FromTransaction(txn LinkedTransaction) PendingPayoutRequest {
	return PendingPayoutRequest{
		ConsultationID: txn.ConsultationID,
		ProviderID:     txn.ProviderID,
		PatientID:      txn.PatientID,
		Currency:       txn.Currency,
		Linked:         &txn,
	}
}
