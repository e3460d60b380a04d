package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// GetMemory returns the customer memory, or ErrNotFound on first contact.
func (s *Store) GetMemory(ctx context.Context, tenantID, customerID string) (*model.CustomerMemory, error) {
	var mem model.CustomerMemory
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		First(&mem).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &mem, nil
}

// SaveMemory upserts the customer memory on its (tenant, customer) key.
func (s *Store) SaveMemory(ctx context.Context, mem *model.CustomerMemory) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "customer_id"}},
		UpdateAll: true,
	}).Create(mem).Error
}
