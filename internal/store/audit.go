package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// AppendAudit writes an audit entry for a conversation action.
func (s *Store) AppendAudit(ctx context.Context, tenantID, conversationID string, action model.AuditAction, detail string) error {
	return s.db.WithContext(ctx).Create(&model.AuditLog{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Action:         action,
		Detail:         detail,
		CreatedAt:      time.Now(),
	}).Error
}

// HasRecentAudit reports whether any of the given actions was logged for
// the conversation after the cutoff.
func (s *Store) HasRecentAudit(ctx context.Context, conversationID string, actions []model.AuditAction, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.AuditLog{}).
		Where("conversation_id = ? AND action IN ? AND created_at >= ?", conversationID, actions, since).
		Count(&count).Error
	return count > 0, err
}
