package model

import (
	"time"
)

// IndexStatus is the embedding indexing state of a training source.
type IndexStatus string

const (
	IndexPending    IndexStatus = "pending"
	IndexProcessing IndexStatus = "processing"
	IndexCompleted  IndexStatus = "completed"
	IndexError      IndexStatus = "error"
)

// TrainingSource is a document owned by an agent, split into chunks for
// retrieval. Status reaches "completed" only once every chunk has its
// embedding stored.
type TrainingSource struct {
	ID       string `gorm:"primaryKey" json:"id"`
	AgentID  string `gorm:"index" json:"agent_id"`
	TenantID string `gorm:"index" json:"tenant_id"`

	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`

	IndexStatus IndexStatus `json:"index_status"`
	IndexError  string      `json:"index_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a bounded slice of source text with its embedding vector.
type Chunk struct {
	ID       string `gorm:"primaryKey" json:"id"`
	SourceID string `gorm:"index" json:"source_id"`
	AgentID  string `gorm:"index" json:"agent_id"`
	TenantID string `json:"tenant_id"`

	Position  int       `json:"position"`
	Content   string    `json:"content"`
	Embedding []float32 `gorm:"serializer:json" json:"embedding"`

	CreatedAt time.Time `json:"created_at"`
}
