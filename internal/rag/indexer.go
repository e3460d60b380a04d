package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// Indexer rebuilds the chunk/embedding set of a training source.
type Indexer struct {
	store    *store.Store
	embedder Embedder
	chunker  Chunker
	logger   *logger.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(st *store.Store, embedder Embedder, log *logger.Logger) *Indexer {
	return &Indexer{
		store:    st,
		embedder: embedder,
		chunker:  NewChunker(),
		logger:   log,
	}
}

// ReindexSource deletes the source's prior chunks and rebuilds them with
// fresh embeddings. An embedding failure marks the source "error" and
// stops indexing for that source.
func (idx *Indexer) ReindexSource(ctx context.Context, src *model.TrainingSource) error {
	if err := idx.store.SetSourceStatus(ctx, src.ID, model.IndexProcessing, ""); err != nil {
		return err
	}

	text := src.Title + "\n\n" + src.Body
	parts := idx.chunker.Split(text)

	chunks := make([]model.Chunk, 0, len(parts))
	for i, part := range parts {
		vec, err := idx.embedder.Embed(ctx, part)
		if err != nil {
			idx.logger.Error("source indexing failed",
				zap.String("source_id", src.ID),
				zap.Int("chunk", i),
				zap.Error(err),
			)
			if serr := idx.store.SetSourceStatus(ctx, src.ID, model.IndexError, err.Error()); serr != nil {
				idx.logger.Error("failed to mark source error", zap.String("source_id", src.ID), zap.Error(serr))
			}
			return err
		}
		chunks = append(chunks, model.Chunk{
			ID:        uuid.Must(uuid.NewV7()).String(),
			SourceID:  src.ID,
			AgentID:   src.AgentID,
			TenantID:  src.TenantID,
			Position:  i,
			Content:   part,
			Embedding: vec,
			CreatedAt: time.Now(),
		})
	}

	if err := idx.store.ReplaceChunks(ctx, src.ID, chunks); err != nil {
		if serr := idx.store.SetSourceStatus(ctx, src.ID, model.IndexError, err.Error()); serr != nil {
			idx.logger.Error("failed to mark source error", zap.String("source_id", src.ID), zap.Error(serr))
		}
		return err
	}

	if err := idx.store.SetSourceStatus(ctx, src.ID, model.IndexCompleted, ""); err != nil {
		return err
	}

	idx.logger.Info("source indexed",
		zap.String("source_id", src.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}
