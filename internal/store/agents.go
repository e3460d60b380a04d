package store

import (
	"context"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// ListActiveAgents returns the active agents of a tenant ordered by
// priority (highest first) then name, so selection is deterministic.
func (s *Store) ListActiveAgents(ctx context.Context, tenantID string) ([]model.Agent, error) {
	var agents []model.Agent
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("priority desc, name asc").
		Find(&agents).Error
	return agents, err
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var agent model.Agent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &agent, nil
}

// GetTenant retrieves a tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

// GetSession resolves a channel session to its owning tenant.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}
