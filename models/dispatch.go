package models

import "time"

// Dispatch job statuses. A job is the durable "dispatch pending" marker for
// one inbound message; a crash mid-dispatch leaves the job claimable again
// instead of silently dropping the user's message.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobDone       = "done"
	JobFailed     = "failed"
	JobTimeout    = "timeout"
)

// DispatchJob queues one assistant dispatch, Postgres-backed (no broker).
type DispatchJob struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Status     string     `gorm:"index;default:'pending'" json:"status"` // pending|processing|done|failed|timeout
	Priority   int        `gorm:"default:5" json:"priority"`
	AppID      string     `gorm:"index;not null" json:"app_id"`
	ChatID     string     `gorm:"index;not null" json:"chat_id"`
	MessageID  string     `gorm:"index;not null" json:"message_id"` // triggering inbound message
	SenderName string     `json:"sender_name"`
	Content    string     `gorm:"type:text" json:"content"`
	MediaURL   string     `json:"media_url,omitempty"`
	ErrorMsg   string     `gorm:"type:text" json:"error_msg"`
	Attempts   int        `gorm:"default:0" json:"attempts"`
	NextRunAt  *time.Time `gorm:"index" json:"next_run_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (DispatchJob) TableName() string {
	return "dispatch_jobs"
}

// DispatchAttempt logs one execution of a job, for retry forensics.
type DispatchAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobID     uint      `gorm:"index;not null" json:"job_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Status    string    `json:"status"` // ok|timeout|error
	ErrorMsg  string    `gorm:"type:text" json:"error_msg"`
	CreatedAt time.Time `json:"created_at"`
}

func (DispatchAttempt) TableName() string {
	return "dispatch_attempts"
}

// AISession maps one (app, chat) pair to its persistent assistant
// conversation id, so the assistant keeps context across turns.
type AISession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AppID     string    `gorm:"uniqueIndex:idx_sessions_app_chat;not null" json:"app_id"`
	ChatID    string    `gorm:"uniqueIndex:idx_sessions_app_chat;not null" json:"chat_id"`
	SessionID string    `gorm:"not null" json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AISession) TableName() string {
	return "ai_sessions"
}
