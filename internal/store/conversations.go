package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// ErrStaleStatus is returned when a conditional status transition did not
// apply because the conversation was no longer in the expected state.
var ErrStaleStatus = errors.New("conversation status changed concurrently")

// FindOrCreateConversation returns the open conversation for the customer,
// creating one if none exists. The second return value reports whether a
// new conversation was created. Near-simultaneous first messages race on
// the OpenKey unique index; the loser of the insert re-fetches the winner.
func (s *Store) FindOrCreateConversation(ctx context.Context, tenantID, customerID, sessionID string) (*model.Conversation, bool, error) {
	key := model.OpenKeyFor(tenantID, customerID)

	conv, err := s.findOpenConversation(ctx, key)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	created := &model.Conversation{
		ID:            uuid.Must(uuid.NewV7()).String(),
		TenantID:      tenantID,
		CustomerID:    customerID,
		SessionID:     sessionID,
		OpenKey:       &key,
		Status:        model.StatusOpen,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(created)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race: another worker inserted first.
		conv, err := s.findOpenConversation(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}

	return created, true, nil
}

func (s *Store) findOpenConversation(ctx context.Context, openKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("open_key = ?", openKey).First(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// AssignAgent persists the routed agent and moves the conversation to
// AI handling. Used once, on creation.
func (s *Store) AssignAgent(ctx context.Context, conversationID, agentID string) error {
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"agent_id":   agentID,
			"status":     model.StatusAIHandling,
			"updated_at": time.Now(),
		}).Error
}

// TransitionStatus performs a conditional status update. It fails with
// ErrStaleStatus when the conversation is not in the expected state, which
// lets the monitor and the pipeline race safely on the same rows.
func (s *Store) TransitionStatus(ctx context.Context, conversationID string, from, to model.ConversationStatus) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to == model.StatusClosed {
		updates["open_key"] = gorm.Expr("NULL")
	}

	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND status = ?", conversationID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// SetStatus updates the status unconditionally. Tools use it after the
// orchestrator has already validated the conversation state.
func (s *Store) SetStatus(ctx context.Context, conversationID string, to model.ConversationStatus) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to == model.StatusClosed {
		updates["open_key"] = gorm.Expr("NULL")
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates).Error
}

// TouchConversation bumps the last-message timestamp and, for customer
// messages, the unread counter.
func (s *Store) TouchConversation(ctx context.Context, conversationID string, at time.Time, fromCustomer bool) error {
	updates := map[string]any{
		"last_message_at": at,
		"updated_at":      time.Now(),
	}
	if fromCustomer {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates).Error
}

// ListConversations returns a tenant's conversations, most recent first,
// optionally filtered by status.
func (s *Store) ListConversations(ctx context.Context, tenantID string, status model.ConversationStatus, limit int) ([]model.Conversation, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var convs []model.Conversation
	err := q.Order("last_message_at desc").Limit(limit).Find(&convs).Error
	return convs, err
}

// StaleAIConversations lists AI_HANDLING conversations whose last message
// is older than the cutoff. The timeout monitor sweeps over these.
func (s *Store) StaleAIConversations(ctx context.Context, cutoff time.Time) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Where("status = ? AND last_message_at < ?", model.StatusAIHandling, cutoff).
		Order("last_message_at asc").
		Find(&convs).Error
	return convs, err
}
