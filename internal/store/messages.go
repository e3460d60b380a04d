package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// CreateMessage appends a message to the conversation log.
func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// InsertMessageOnce inserts the message unless its ID already exists,
// reporting whether a row was written. Queue redeliveries carry the same
// message ID and land on the existing row.
func (s *Store) InsertMessageOnce(ctx context.Context, msg *model.Message) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListMessages returns the most recent messages of a conversation in
// creation order (oldest first).
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LastMessage returns the newest message of a conversation.
func (s *Store) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		First(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}
