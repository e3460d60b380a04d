package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

// fallbackCharCap bounds the raw-text fallback when no embeddings exist.
const fallbackCharCap = 8000

// ScoredChunk is a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk model.Chunk
	Score float64
}

// Retriever ranks an agent's chunks against a customer message.
type Retriever struct {
	store     *store.Store
	embedder  Embedder
	logger    *logger.Logger
	topK      int
	threshold float64
}

// NewRetriever creates a retriever with the given relevance settings.
func NewRetriever(st *store.Store, embedder Embedder, log *logger.Logger, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		store:     st,
		embedder:  embedder,
		logger:    log,
		topK:      topK,
		threshold: threshold,
	}
}

// CosineSimilarity computes the cosine similarity of two vectors. Vectors
// of mismatched dimension or zero magnitude score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores chunks against the query vector, discards those below the
// threshold and returns at most topK, sorted by descending similarity.
func Rank(chunks []model.Chunk, queryVec []float32, threshold float64, topK int) []ScoredChunk {
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, ch := range chunks {
		score := CosineSimilarity(queryVec, ch.Embedding)
		if score < threshold {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: ch, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// BuildContext returns the grounding text for a customer message. Only an
// agent with no embedded chunks at all degrades to its raw training text,
// bounded by a hard character cap. Once embeddings exist, a query-time
// failure or an all-below-threshold ranking yields an empty context; an
// off-topic message must never pull the whole knowledge base into the
// prompt.
func (r *Retriever) BuildContext(ctx context.Context, agentID, query string) string {
	chunks, err := r.store.ListChunksByAgent(ctx, agentID)
	if err != nil {
		r.logger.Warn("retrieval skipped: chunk load failed", zap.String("agent_id", agentID), zap.Error(err))
		return ""
	}
	if len(chunks) == 0 {
		return r.rawContext(ctx, agentID)
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("retrieval skipped: query embedding failed", zap.String("agent_id", agentID), zap.Error(err))
		return ""
	}

	results := Rank(chunks, queryVec, r.threshold, r.topK)
	metrics.RetrievalChunks.Observe(float64(len(results)))
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = res.Chunk.Content
	}
	return strings.Join(parts, "\n\n")
}

// rawContext concatenates the agent's training sources for agents whose
// sources were never embedded.
func (r *Retriever) rawContext(ctx context.Context, agentID string) string {
	sources, err := r.store.ListSourcesByAgent(ctx, agentID)
	if err != nil {
		r.logger.Warn("context fallback failed", zap.String("agent_id", agentID), zap.Error(err))
		return ""
	}

	var b strings.Builder
	for _, src := range sources {
		if b.Len() >= fallbackCharCap {
			break
		}
		b.WriteString(src.Title)
		b.WriteString("\n")
		b.WriteString(src.Body)
		b.WriteString("\n\n")
	}
	return clipRunes(b.String(), fallbackCharCap)
}

// clipRunes truncates s to at most max bytes without splitting a rune.
func clipRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
