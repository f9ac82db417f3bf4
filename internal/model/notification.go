package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification types supported by the service.
const (
	TypeEmail = "email"
	TypeSMS   = "sms"
	TypeInApp = "in_app"
)

// Notification statuses. "sent" and "failed" are terminal:
// once a notification reaches one of them it never changes again.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DefaultMaxRetries is the number of delivery attempts a notification
// gets before it is marked failed.
const DefaultMaxRetries = 3

// Notification represents a notification document in the store.
type Notification struct {
	ID         uuid.UUID      `json:"id" bson:"id"`                                   // unique identifier, immutable
	UserID     string         `json:"user_id" bson:"user_id"`                         // recipient user identifier
	Type       string         `json:"type" bson:"type"`                               // delivery channel: "email", "sms" or "in_app"
	Title      string         `json:"title" bson:"title"`                             // notification title
	Message    string         `json:"message" bson:"message"`                         // notification body
	Status     string         `json:"status" bson:"status"`                           // current state: "pending", "sent" or "failed"
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`                   // set once at creation
	SentAt     *time.Time     `json:"sent_at,omitempty" bson:"sent_at,omitempty"`     // set on the sent transition
	FailedAt   *time.Time     `json:"failed_at,omitempty" bson:"failed_at,omitempty"` // set on the failed transition
	LastRetry  *time.Time     `json:"last_retry,omitempty" bson:"last_retry,omitempty"`
	Error      string         `json:"error,omitempty" bson:"error,omitempty"` // last delivery error, if any
	RetryCount int            `json:"retry_count" bson:"retry_count"`         // incremented on each failed attempt
	MaxRetries int            `json:"max_retries" bson:"max_retries"`         // fixed at creation
	Metadata   map[string]any `json:"metadata" bson:"metadata"`               // opaque key-value bag, carried through unchanged
}

// Message is the queue wire form of a notification. It mirrors the
// stored document so the delivery worker does not need a store round
// trip to decide what to send.
type Message struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
	Metadata   map[string]any `json:"metadata"`
}

// MessageOf builds the queue message for a notification.
func MessageOf(n Notification) Message {
	return Message{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		Status:     n.Status,
		CreatedAt:  n.CreatedAt,
		RetryCount: n.RetryCount,
		MaxRetries: n.MaxRetries,
		Metadata:   n.Metadata,
	}
}

// ValidType reports whether t is a known notification type.
func ValidType(t string) bool {
	switch t {
	case TypeEmail, TypeSMS, TypeInApp:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known notification status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}
