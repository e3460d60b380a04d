package store

import (
	"context"

	"github.com/atendai/conversation-pipeline/internal/model"
	"gorm.io/gorm"
)

// GetSource retrieves a training source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (*model.TrainingSource, error) {
	var src model.TrainingSource
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&src).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &src, nil
}

// ListSourcesByAgent returns all training sources of an agent.
func (s *Store) ListSourcesByAgent(ctx context.Context, agentID string) ([]model.TrainingSource, error) {
	var srcs []model.TrainingSource
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Find(&srcs).Error
	return srcs, err
}

// SetSourceStatus updates a source's indexing status.
func (s *Store) SetSourceStatus(ctx context.Context, sourceID string, status model.IndexStatus, indexErr string) error {
	return s.db.WithContext(ctx).Model(&model.TrainingSource{}).
		Where("id = ?", sourceID).
		Updates(map[string]any{
			"index_status": status,
			"index_error":  indexErr,
		}).Error
}

// ReplaceChunks deletes a source's prior chunks and inserts the rebuilt
// set in one transaction. Called whenever source content changes.
func (s *Store) ReplaceChunks(ctx context.Context, sourceID string, chunks []model.Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", sourceID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(&chunks).Error
	})
}

// ListChunksByAgent returns every embedded chunk for an agent.
func (s *Store) ListChunksByAgent(ctx context.Context, agentID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Find(&chunks).Error
	return chunks, err
}
