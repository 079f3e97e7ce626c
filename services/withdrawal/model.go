package withdrawal

import "time"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusRejected   Status = "REJECTED"
)

func (s Status) Open() bool {
	return s == StatusPending || s == StatusProcessing
}

var openStatuses = []string{string(StatusPending), string(StatusProcessing)}

const (
	MethodBankTransfer = "BANK_TRANSFER"
	SourceWithdrawal   = "withdrawal"
)

type BankDetails struct {
	BankName      string `gorm:"column:bank_name" json:"bank_name"`
	AccountNumber string `gorm:"column:account_number" json:"account_number"`
	AccountName   string `gorm:"column:account_name" json:"account_name"`
}

// Withdrawal debits the provider wallet only when it becomes PAID.
type Withdrawal struct {
	ID              string      `gorm:"column:id;primaryKey" json:"id"`
	Reference       string      `gorm:"column:reference;uniqueIndex" json:"reference"`
	ProviderID      string      `gorm:"column:provider_id;index" json:"provider_id"`
	Amount          int64       `gorm:"column:amount" json:"amount"`
	Currency        string      `gorm:"column:currency;type:varchar(3)" json:"currency"`
	Method          string      `gorm:"column:method;type:varchar(20)" json:"method"`
	Status          Status      `gorm:"column:status;index;type:varchar(20)" json:"status"`
	Bank            BankDetails `gorm:"embedded" json:"bank"`
	ProcessingAt    *time.Time  `gorm:"column:processing_at" json:"processing_at,omitempty"`
	ApprovedAt      *time.Time  `gorm:"column:approved_at" json:"approved_at,omitempty"`
	ApprovedBy      string      `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovalNote    string      `gorm:"column:approval_note" json:"approval_note,omitempty"`
	RejectedAt      *time.Time  `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	RejectedBy      string      `gorm:"column:rejected_by" json:"rejected_by,omitempty"`
	RejectionReason string      `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

type InitiateRequest struct {
	ProviderID string      `json:"provider_id"`
	Amount     int64       `json:"amount"`
	Bank       BankDetails `json:"bank"`
}
