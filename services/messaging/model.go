package messaging

import "time"

// Chat is a conversation between one patient and one provider.
type Chat struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	PatientID  string    `gorm:"column:patient_id;index" json:"patient_id"`
	ProviderID string    `gorm:"column:provider_id;index" json:"provider_id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

func (c *Chat) participant(userID string) bool {
	return userID == c.PatientID || userID == c.ProviderID
}

func (c *Chat) counterpart(userID string) string {
	if userID == c.PatientID {
		return c.ProviderID
	}
	return c.PatientID
}

// ChatReceipt counts the messages a participant has not seen yet.
type ChatReceipt struct {
	ChatID        string     `gorm:"column:chat_id;primaryKey" json:"chat_id"`
	UserID        string     `gorm:"column:user_id;primaryKey" json:"user_id"`
	Unseen        int        `gorm:"column:unseen" json:"unseen"`
	LastMessageAt *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`
	LastSeenAt    *time.Time `gorm:"column:last_seen_at" json:"last_seen_at,omitempty"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (ChatReceipt) TableName() string { return "chat_receipts" }

type OpenChatRequest struct {
	ChatID     string `json:"chat_id"`
	PatientID  string `json:"patient_id" binding:"required"`
	ProviderID string `json:"provider_id" binding:"required"`
}

type unseenPayload struct {
	ChatID     string `json:"chat_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

func unseenJobID(senderID, receiverID string) string {
	return "unseen:" + senderID + ":" + receiverID
}
