// Package model defines data structures for the conversation pipeline.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusOpen            ConversationStatus = "OPEN"
	StatusAIHandling      ConversationStatus = "AI_HANDLING"
	StatusHumanHandling   ConversationStatus = "HUMAN_HANDLING"
	StatusWaitingResponse ConversationStatus = "WAITING_RESPONSE"
	StatusClosed          ConversationStatus = "CLOSED"
)

// Conversation represents a conversation thread with a customer.
type Conversation struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	TenantID   string  `gorm:"index" json:"tenant_id"`
	CustomerID string  `gorm:"index" json:"customer_id"`
	SessionID  string  `gorm:"index" json:"session_id"`
	AgentID    *string `json:"agent_id,omitempty"`

	// OpenKey holds "tenant|customer" while the conversation is not CLOSED
	// and nil afterwards. The unique index on it guarantees at most one
	// non-terminal conversation per customer even under concurrent creates.
	OpenKey *string `gorm:"uniqueIndex" json:"-"`

	Status        ConversationStatus `gorm:"index" json:"status"`
	LastMessageAt time.Time          `gorm:"index" json:"last_message_at"`
	UnreadCount   int                `json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenKeyFor builds the uniqueness key for a non-closed conversation.
func OpenKeyFor(tenantID, customerID string) string {
	return tenantID + "|" + customerID
}

// AIManaged reports whether the pipeline should answer on this conversation.
func (c *Conversation) AIManaged() bool {
	return c.Status == StatusAIHandling && c.AgentID != nil
}
