package approval

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindPayout     Kind = "PAYOUT"
	KindWithdrawal Kind = "WITHDRAWAL"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

func (a Action) terminal() Status {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// Token gates one payout or withdrawal behind an external decision. It leaves
// PENDING exactly once.
type Token struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Kind        Kind           `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	Status      Status         `gorm:"column:status;index;type:varchar(20);default:'PENDING'" json:"status"`
	ProcessedAt *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessedBy string         `gorm:"column:processed_by" json:"processed_by,omitempty"`
	ChannelID   string         `gorm:"column:channel_id" json:"channel_id,omitempty"`
	MessageID   string         `gorm:"column:message_id" json:"message_id,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Token) TableName() string { return "approval_tokens" }

// Payload is implemented by PayoutPayload and WithdrawalPayload only.
type Payload interface {
	Kind() Kind
	payload()
}

type PayoutPayload struct {
	PayoutID       string `json:"payout_id,omitempty"`
	ConsultationID string `json:"consultation_id"`
	ProviderID     string `json:"provider_id"`
	PatientID      string `json:"patient_id"`
}

func (PayoutPayload) Kind() Kind { return KindPayout }
func (PayoutPayload) payload()   {}

type WithdrawalPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	ProviderID   string `json:"provider_id"`
}

func (WithdrawalPayload) Kind() Kind { return KindWithdrawal }
func (WithdrawalPayload) payload()   {}

func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	switch kind {
	case KindPayout:
		var p PayoutPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindWithdrawal:
		var p WithdrawalPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown approval kind %q", kind)
	}
}

const (
	ReasonApplied          = "APPLIED"
	ReasonAlreadyProcessed = "ALREADY_PROCESSED"
)

// Outcome is the machine-checkable result of a settlement decision.
type Outcome struct {
	Applied bool   `json:"applied"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func Applied(status, message string) Outcome {
	return Outcome{Applied: true, Status: status, Reason: ReasonApplied, Message: message}
}

func AlreadyProcessed(status string) Outcome {
	return Outcome{Status: status, Reason: ReasonAlreadyProcessed, Message: "Already processed"}
}

type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is what the decision channel renders next to the two actions.
type Prompt struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

type PresentationRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}
