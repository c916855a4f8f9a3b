package entity

import "time"

// NotificationType identifies what a queued notification is about
type NotificationType string

const (
	NotificationApprovalRequired   NotificationType = "APPROVAL_REQUIRED"
	NotificationStatusChange       NotificationType = "STATUS_CHANGE"
	NotificationAdditionalApprover NotificationType = "ADDITIONAL_APPROVER"
)

// NotificationPayload carries everything a transport needs to render a notification
type NotificationPayload struct {
	RequestType  string  `json:"request_type"`
	RequestID    int64   `json:"request_id"`
	InstanceID   int64   `json:"instance_id"`
	CompanyID    int64   `json:"company_id"`
	Level        int     `json:"level,omitempty"`
	Status       string  `json:"status"`
	Decision     string  `json:"decision,omitempty"`
	ActorID      int64   `json:"actor_id,omitempty"`
	Comment      string  `json:"comment,omitempty"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// NotificationTask is an in-memory unit of delivery work; it is never persisted
type NotificationTask struct {
	ID            string              `json:"id"`
	Type          NotificationType    `json:"type"`
	Payload       NotificationPayload `json:"payload"`
	RetryCount    int                 `json:"retry_count"`
	MaxRetries    int                 `json:"max_retries"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	NextAttemptAt time.Time           `json:"next_attempt_at"`
}

// InAppNotification is the persisted record shown in a user's notification centre
type InAppNotification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Data      string    `json:"data,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
