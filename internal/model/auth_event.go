package model

import "time"

// Auth event actions published to the audit queue.
const (
	ActionRegistered = "user.registered"
	ActionLoggedIn   = "user.logged_in"
	ActionRefreshed  = "session.refreshed"
	ActionLoggedOut  = "user.logged_out"
)

// AuthEvent is one audit-trail row describing a session lifecycle transition.
type AuthEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Username  string    `gorm:"size:64;not null" json:"username"`
	Action    string    `gorm:"size:32;not null" json:"action"`
	ClientIP  string    `gorm:"size:64" json:"client_ip"`
	CreatedAt time.Time `json:"created_at"`
}
