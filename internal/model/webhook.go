package model

import (
	"time"
)

// EventType enumerates the integration events a webhook can subscribe to.
type EventType string

const (
	EventNewConversation       EventType = "NEW_CONVERSATION"
	EventMessageReceived       EventType = "MESSAGE_RECEIVED"
	EventSaleCompleted         EventType = "SALE_COMPLETED"
	EventCustomerInterest      EventType = "CUSTOMER_INTEREST"
	EventHumanTransfer         EventType = "HUMAN_TRANSFER"
	EventConversationClosed    EventType = "CONVERSATION_CLOSED"
	EventQuoteRequested        EventType = "QUOTE_REQUESTED"
	EventLeadCaptured          EventType = "LEAD_CAPTURED"
	EventVerificationRequested EventType = "VERIFICATION_REQUESTED"
	EventTest                  EventType = "TEST"
)

// ValidEventType reports whether s names a known event type.
func ValidEventType(s string) bool {
	switch EventType(s) {
	case EventNewConversation, EventMessageReceived, EventSaleCompleted,
		EventCustomerInterest, EventHumanTransfer, EventConversationClosed,
		EventQuoteRequested, EventLeadCaptured, EventVerificationRequested,
		EventTest:
		return true
	}
	return false
}

// Webhook subscribes a tenant endpoint to a set of event types.
type Webhook struct {
	ID       string `gorm:"primaryKey" json:"id"`
	TenantID string `gorm:"index" json:"tenant_id"`

	URL     string            `json:"url"`
	Events  []string          `gorm:"serializer:json" json:"events"`
	Secret  string            `json:"-"`
	Headers map[string]string `gorm:"serializer:json" json:"headers,omitempty"`

	TimeoutSeconds int  `json:"timeout_seconds"`
	MaxRetries     int  `json:"max_retries"`
	Active         bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubscribedTo reports whether the webhook wants the given event.
func (w *Webhook) SubscribedTo(event EventType) bool {
	for _, e := range w.Events {
		if e == string(event) {
			return true
		}
	}
	return false
}

// WebhookDeliveryLog records one delivery attempt. Append-only.
type WebhookDeliveryLog struct {
	ID        string `gorm:"primaryKey" json:"id"`
	WebhookID string `gorm:"index" json:"webhook_id"`
	TenantID  string `json:"tenant_id"`

	Event      string `json:"event"`
	StatusCode int    `json:"status_code"`
	Response   string `json:"response"`
	Attempt    int    `json:"attempt"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// WebhookPayload is the body POSTed to subscribers.
type WebhookPayload struct {
	Event     EventType      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
