package models

import "time"

// ApiKey is a stored API credential scoped to a role. Only the SHA-256 of
// the key is persisted; Key holds the plaintext in the create response only.
type ApiKey struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	Role       string     `db:"role" json:"role"`
	Prefix     string     `db:"key_prefix" json:"prefix"`
	KeyHash    string     `db:"key_hash" json:"-"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`

	Key string `db:"-" json:"key,omitempty"`
}
