package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a message for the push collaborator.
type Notification struct {
	UserID   uuid.UUID         `json:"user_id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DeliveryStatus represents the dispatch state of a notification.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusSkipped   DeliveryStatus = "skipped" // no endpoint configured
)

// NotificationDeliveryLog records each dispatch attempt.
type NotificationDeliveryLog struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	Title      string         `json:"title"`
	Payload    string         `json:"payload"` // JSON string
	HTTPStatus *int           `json:"http_status"`
	Attempt    int            `json:"attempt"`
	Status     DeliveryStatus `json:"status"`
	LastError  *string        `json:"last_error"`
	CreatedAt  time.Time      `json:"created_at"`
}
