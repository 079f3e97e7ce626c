package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

type EntryType string

const (
	Credit EntryType = "CREDIT"
	Debit  EntryType = "DEBIT"
)

func (t EntryType) Valid() bool {
	return t == Credit || t == Debit
}

const DefaultSource = "system"

type Account struct {
	ProviderID string    `gorm:"column:provider_id;primaryKey" json:"provider_id"`
	Balance    int64     `gorm:"column:balance" json:"balance"`
	Active     bool      `gorm:"column:active" json:"active"`
	Currency   string    `gorm:"column:currency" json:"currency"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string { return "wallet_accounts" }

// JournalEntry is one append-only balance movement. Sequence numbers are
// contiguous per provider and each entry hashes over its predecessor.
type JournalEntry struct {
	ID              string    `gorm:"column:id;primaryKey" json:"id"`
	ProviderID      string    `gorm:"column:provider_id;uniqueIndex:idx_journal_provider_seq" json:"provider_id"`
	Sequence        int64     `gorm:"column:sequence;uniqueIndex:idx_journal_provider_seq" json:"sequence"`
	Type            EntryType `gorm:"column:type" json:"type"`
	Amount          int64     `gorm:"column:amount" json:"amount"`
	PreviousBalance int64     `gorm:"column:previous_balance" json:"previous_balance"`
	NewBalance      int64     `gorm:"column:new_balance" json:"new_balance"`
	Source          string    `gorm:"column:source" json:"source"`
	ReferenceID     string    `gorm:"column:reference_id;index" json:"reference_id"`
	Note            string    `gorm:"column:note" json:"note"`
	PreviousHash    string    `gorm:"column:previous_hash" json:"previous_hash"`
	Hash            string    `gorm:"column:hash" json:"hash"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

func (JournalEntry) TableName() string { return "wallet_journal_entries" }

func (m *JournalEntry) HashFields() map[string]string {
	return map[string]string{
		"id":               m.ID,
		"provider_id":      m.ProviderID,
		"sequence":         fmt.Sprintf("%d", m.Sequence),
		"type":             string(m.Type),
		"amount":           fmt.Sprintf("%d", m.Amount),
		"previous_balance": fmt.Sprintf("%d", m.PreviousBalance),
		"new_balance":      fmt.Sprintf("%d", m.NewBalance),
		"source":           m.Source,
		"reference_id":     m.ReferenceID,
		"note":             m.Note,
		"created_at":       m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":    m.PreviousHash,
	}
}

func (m *JournalEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Delta is the signed balance change the entry records.
func (m *JournalEntry) Delta() int64 {
	if m.Type == Debit {
		return -m.Amount
	}
	return m.Amount
}

type UpdateBalanceRequest struct {
	ProviderID  string    `json:"provider_id"`
	Amount      int64     `json:"amount"`
	Type        EntryType `json:"type"`
	Source      string    `json:"source"`
	ReferenceID string    `json:"reference_id"`
	Note        string    `json:"note"`
}

type Reconciliation struct {
	ProviderID   string `json:"provider_id"`
	Balance      int64  `json:"balance"`
	JournalTotal int64  `json:"journal_total"`
	EntryCount   int64  `json:"entry_count"`
	Consistent   bool   `json:"consistent"`
}
