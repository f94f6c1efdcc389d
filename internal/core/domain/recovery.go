package domain

import "time"

// RecoveryRequest is handed to the notification outbox when a registered
// email asks to recover its password. It carries no secret.
type RecoveryRequest struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requested_at"`
}
