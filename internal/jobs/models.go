package jobs

import (
	"time"

	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"github.com/suPer8Hu/agent-squad/internal/session"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one asynchronous turn.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"` // ULID length

	UserID  string                   `gorm:"type:varchar(128);not null;index:uniq_job_user_idempo,unique,priority:1" json:"user_id"`
	ChatID  string                   `gorm:"type:varchar(128);not null;default:''" json:"chat_id,omitempty"`
	Text    string                   `gorm:"type:text;not null" json:"text"`
	History []session.ContextMessage `gorm:"serializer:json;type:text" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_user_idempo,unique,priority:2" json:"idempotency_key,omitempty"`

	Status Status `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	Result *orchestrator.Response `gorm:"serializer:json;type:text" json:"result,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "squad_jobs" }

func Models() []any { return []any{&Job{}} }

func (j *Job) Event() orchestrator.Event {
	return orchestrator.Event{
		UserID:              j.UserID,
		ChatID:              j.ChatID,
		Text:                j.Text,
		ConversationHistory: j.History,
	}
}

func (j *Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}
