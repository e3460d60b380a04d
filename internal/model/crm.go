package model

import (
	"time"
)

// OrderStatus is the lifecycle state of a sale.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a sale created by the pipeline's tools.
type Order struct {
	ID             string `gorm:"primaryKey" json:"id"`
	TenantID       string `gorm:"index" json:"tenant_id"`
	ConversationID string `gorm:"index" json:"conversation_id"`
	CustomerID     string `gorm:"index" json:"customer_id"`

	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	Total       float64     `json:"total"`
	Status      OrderStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DealStage is the pipeline stage of a CRM deal.
type DealStage string

const (
	DealStageNew         DealStage = "new"
	DealStageQualified   DealStage = "qualified"
	DealStageProposal    DealStage = "proposal"
	DealStageNegotiation DealStage = "negotiation"
	DealStageWon         DealStage = "won"
	DealStageLost        DealStage = "lost"
)

// Advanced reports whether the deal moved past initial qualification,
// which the timeout monitor treats as completed AI work.
func (s DealStage) Advanced() bool {
	switch s {
	case DealStageProposal, DealStageNegotiation, DealStageWon:
		return true
	}
	return false
}

// Deal is a CRM pipeline entry for a customer.
type Deal struct {
	ID         string `gorm:"primaryKey" json:"id"`
	TenantID   string `gorm:"index" json:"tenant_id"`
	CustomerID string `gorm:"index" json:"customer_id"`

	Title string    `json:"title"`
	Stage DealStage `json:"stage"`
	Value float64   `json:"value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppointmentStatus is the confirmation state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a scheduled meeting with a customer.
type Appointment struct {
	ID         string `gorm:"primaryKey" json:"id"`
	TenantID   string `gorm:"index" json:"tenant_id"`
	CustomerID string `gorm:"index" json:"customer_id"`

	Status      AppointmentStatus `json:"status"`
	ScheduledAt time.Time         `json:"scheduled_at"`

	CreatedAt time.Time `json:"created_at"`
}

// CustomerInterest records a product the customer expressed interest in.
type CustomerInterest struct {
	ID             string `gorm:"primaryKey" json:"id"`
	TenantID       string `gorm:"index" json:"tenant_id"`
	ConversationID string `gorm:"index" json:"conversation_id"`
	CustomerID     string `json:"customer_id"`

	ProductName string `json:"product_name"`
	Notes       string `json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Lead is contact data captured from a conversation.
type Lead struct {
	ID             string `gorm:"primaryKey" json:"id"`
	TenantID       string `gorm:"index" json:"tenant_id"`
	ConversationID string `json:"conversation_id"`

	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Product is a catalog entry searchable by the product-lookup tool.
type Product struct {
	ID       string `gorm:"primaryKey" json:"id"`
	TenantID string `gorm:"index" json:"tenant_id"`

	Name        string  `json:"name"`
	Description string  `json:"description"`
	Color       string  `json:"color"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"image_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
