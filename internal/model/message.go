package model

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderCustomer Sender = "CUSTOMER"
	SenderAI       Sender = "AI"
	SenderHuman    Sender = "HUMAN"
)

// MessageType is the content type of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeAudio MessageType = "audio"
)

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID             string `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"index" json:"conversation_id"`
	TenantID       string `gorm:"index" json:"tenant_id"`

	Sender   Sender      `json:"sender"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type"`
	MediaURL *string     `json:"media_url,omitempty"`
	Read     bool        `json:"read"`

	// LLM metadata, populated for AI messages only.
	Model     *string `json:"model,omitempty"`
	TokensIn  *int    `json:"tokens_in,omitempty"`
	TokensOut *int    `json:"tokens_out,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// NewAIMessage builds a plain-text AI message ready for persistence.
func NewAIMessage(conversationID, tenantID, content string) *Message {
	return &Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Sender:         SenderAI,
		Content:        content,
		Type:           MessageTypeText,
		Read:           true,
	}
}

// NewCustomerMessage builds an inbound customer message ready for
// persistence.
func NewCustomerMessage(conversationID, tenantID, content string, msgType MessageType, mediaURL *string) *Message {
	return &Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Sender:         SenderCustomer,
		Content:        content,
		Type:           msgType,
		MediaURL:       mediaURL,
	}
}

// InboundMessageData is the message payload of an inbound queue job.
type InboundMessageData struct {
	From     string  `json:"from"`
	Body     string  `json:"body"`
	Type     string  `json:"type"`
	MediaURL *string `json:"mediaUrl,omitempty"`
}

// InboundJob is the schema of one durable-queue job. MessageID is
// assigned at enqueue time and doubles as the persisted message ID, so a
// redelivered job maps onto the same row instead of inserting a twin.
type InboundJob struct {
	MessageID   string             `json:"messageId"`
	SessionID   string             `json:"sessionId"`
	Session     string             `json:"session"`
	MessageData InboundMessageData `json:"messageData"`
}
