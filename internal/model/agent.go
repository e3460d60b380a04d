package model

import (
	"time"
)

// Agent is a tenant-scoped AI persona that can be routed to conversations.
type Agent struct {
	ID       string `gorm:"primaryKey" json:"id"`
	TenantID string `gorm:"index" json:"tenant_id"`

	Name         string   `json:"name"`
	Instructions string   `json:"instructions"`
	Keywords     []string `gorm:"serializer:json" json:"keywords"`
	Priority     int      `json:"priority"`
	IsDefault    bool     `json:"is_default"`
	IsActive     bool     `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tenant is the owning company for agents, conversations and webhooks.
type Tenant struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session maps a channel session to its owning tenant.
type Session struct {
	ID       string `gorm:"primaryKey" json:"id"`
	TenantID string `gorm:"index" json:"tenant_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
