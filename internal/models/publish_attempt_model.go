package models

import "time"

// PublishAttempt records one publish run for a post, successful or not.
type PublishAttempt struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	AccountID      *int64    `db:"account_id" json:"account_id,omitempty"`
	Trigger        string    `db:"trigger" json:"trigger"` // immediate, webhook
	Simulated      bool      `db:"simulated" json:"simulated"`
	ExternalPostID string    `db:"external_post_id" json:"external_post_id,omitempty"`
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

const (
	TriggerImmediate = "immediate"
	TriggerWebhook   = "webhook"
)
