package stream

import "time"

// ChatRequest is the POST body for the turn endpoint.
type ChatRequest struct {
	SessionID int64  `json:"session_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// UserMessageDTO mirrors the "metadata" event's embedded user_message
// object.
type UserMessageDTO struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
