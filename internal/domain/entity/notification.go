package entity

import "time"

// Notification is an in-app notification row for one recipient
type Notification struct {
	ID                   string    `json:"id"`
	RequestID            string    `json:"request_id"`
	RecipientID          string    `json:"recipient_id"`
	NotificationType     string    `json:"notification_type"`
	Title                string    `json:"title"`
	Message              string    `json:"message"`
	IsRead               bool      `json:"is_read"`
	RelatedApprovalLevel *int      `json:"related_approval_level,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// ActivityLog is an audit trail entry for a request
type ActivityLog struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
