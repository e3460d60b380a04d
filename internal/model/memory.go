package model

import (
	"time"
)

// CustomerMemory is the long-term memory for one (tenant, customer) pair.
// It is merged after every AI-handled exchange, never replaced wholesale.
type CustomerMemory struct {
	ID         string `gorm:"primaryKey" json:"id"`
	TenantID   string `gorm:"index:idx_memory_customer,unique" json:"tenant_id"`
	CustomerID string `gorm:"index:idx_memory_customer,unique" json:"customer_id"`

	Summary        string            `json:"summary"`
	Preferences    map[string]string `gorm:"serializer:json" json:"preferences"`
	RecentProducts []string          `gorm:"serializer:json" json:"recent_products"`
	Tags           []string          `gorm:"serializer:json" json:"tags"`

	ConversationCount int       `json:"conversation_count"`
	MessageCount      int       `json:"message_count"`
	LastContactAt     time.Time `json:"last_contact_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
