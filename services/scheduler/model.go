package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type JobType string

const (
	UnseenNotification JobType = "unseen-notification"
	PendingReminder    JobType = "pending-reminder"
	PendingExpiry      JobType = "pending-expiry"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusExecuted  Status = "executed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Job is the durable record behind every in-process timer.
type Job struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	Type       JobType        `gorm:"column:type;index;type:varchar(50);not null" json:"type"`
	RunAt      time.Time      `gorm:"column:run_at;index" json:"run_at"`
	Status     Status         `gorm:"column:status;index;type:varchar(20);default:'scheduled'" json:"status"`
	Payload    datatypes.JSON `gorm:"column:payload" json:"payload"`
	Attempts   int            `gorm:"column:attempts" json:"attempts"`
	LastError  string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	ClaimedBy  string         `gorm:"column:claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time     `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	ExecutedAt *time.Time     `gorm:"column:executed_at" json:"executed_at,omitempty"`
	CanceledAt *time.Time     `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Job) TableName() string { return "scheduled_jobs" }

func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

type ScheduleRequest struct {
	// ID is optional. Reusing an id replaces the pending job.
	ID      string
	Type    JobType
	RunAt   time.Time
	Payload any
}

// Handler runs a fired job. It must re-check domain state since a job can be
// delivered after the condition it was scheduled for has changed.
type Handler func(ctx context.Context, job *Job) error
