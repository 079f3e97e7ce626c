package notification

import "time"

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

// Contact is the directory record used to address a notification.
type Contact struct {
	UserID       string    `gorm:"column:user_id;primaryKey" json:"user_id"`
	Role         Role      `gorm:"column:role;type:varchar(20)" json:"role"`
	FullName     string    `gorm:"column:full_name" json:"full_name"`
	Email        string    `gorm:"column:email" json:"email"`
	ProfileImage string    `gorm:"column:profile_image" json:"profile_image"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }

type Recipient struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Message is the payload of a notification:send task.
type Message struct {
	To       Recipient      `json:"to"`
	Template string         `json:"template"`
	Subject  string         `json:"subject,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

const (
	TemplatePendingReminder = "pending-consultation-patient-reminder"
	TemplatePendingExpired  = "pending-consultation-patient-expired"
	TemplateUnseenMessage   = "unseen-message"
)
