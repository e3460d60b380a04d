package model

import (
	"time"
)

// AuditAction identifies a logged pipeline action.
type AuditAction string

const (
	AuditInactivityWarning     AuditAction = "INACTIVITY_WARNING_SENT"
	AuditAIConversationClosed  AuditAction = "AI_CONVERSATION_CLOSED"
	AuditHumanTransfer         AuditAction = "HUMAN_TRANSFER"
	AuditVerificationRequested AuditAction = "VERIFICATION_REQUESTED"
	AuditSaleCompleted         AuditAction = "SALE_COMPLETED"
	AuditLeadCaptured          AuditAction = "LEAD_CAPTURED"
	AuditQuoteRequested        AuditAction = "QUOTE_REQUESTED"
)

// AuditLog is an append-only record of pipeline actions. The timeout
// monitor reads it to decide whether a warning was already sent and
// whether AI work on a conversation is complete.
type AuditLog struct {
	ID             string `gorm:"primaryKey" json:"id"`
	TenantID       string `gorm:"index" json:"tenant_id"`
	ConversationID string `gorm:"index" json:"conversation_id"`

	Action AuditAction `gorm:"index" json:"action"`
	Detail string      `json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// RealtimeEvent is a best-effort notification for live dashboards.
type RealtimeEvent struct {
	Type           string         `json:"type"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
