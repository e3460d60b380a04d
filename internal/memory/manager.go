// Package memory maintains long-term customer memory merged after every
// AI-handled exchange.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/llm"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

const (
	// maxRecentProducts bounds the recently-mentioned list.
	maxRecentProducts = 10

	// maxPromptChars bounds the rendered memory block.
	maxPromptChars = 1200
)

// Exchange is one AI-handled customer interaction to fold into memory.
// Tag-only updates (no texts) adjust metadata without counting as a
// message.
type Exchange struct {
	CustomerText string
	AIText       string
	Products     []string
	Tags         []string
	Preferences  map[string]string

	// NewConversation marks the first exchange of a conversation so the
	// per-customer conversation counter advances.
	NewConversation bool
}

func (ex Exchange) hasMessage() bool {
	return ex.CustomerText != "" || ex.AIText != ""
}

// Manager reads and merges customer memory.
type Manager struct {
	store      *store.Store
	summarizer llm.Client
	model      string
	logger     *logger.Logger
}

// NewManager creates a memory manager. summarizer may be nil; merges then
// always use plain concatenation.
func NewManager(st *store.Store, summarizer llm.Client, model string, log *logger.Logger) *Manager {
	return &Manager{
		store:      st,
		summarizer: summarizer,
		model:      model,
		logger:     log,
	}
}

// Get returns the memory for the customer, or nil when none exists yet.
func (m *Manager) Get(ctx context.Context, tenantID, customerID string) (*model.CustomerMemory, error) {
	mem, err := m.store.GetMemory(ctx, tenantID, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return mem, err
}

// Update creates the memory on first contact or merges the exchange into
// the existing record. Merging never replaces wholesale: summaries are
// combined, lists unioned and truncated, preference maps shallow-merged
// with new values winning, counters incremented.
func (m *Manager) Update(ctx context.Context, tenantID, customerID string, ex Exchange) error {
	now := time.Now()
	exchangeSummary := m.summarizeExchange(ctx, ex)

	existing, err := m.Get(ctx, tenantID, customerID)
	if err != nil {
		return fmt.Errorf("loading memory: %w", err)
	}

	if existing == nil {
		mem := &model.CustomerMemory{
			ID:                uuid.Must(uuid.NewV7()).String(),
			TenantID:          tenantID,
			CustomerID:        customerID,
			Summary:           exchangeSummary,
			Preferences:       ex.Preferences,
			RecentProducts:    truncate(ex.Products, maxRecentProducts),
			Tags:              dedupe(ex.Tags),
			ConversationCount: 1,
			LastContactAt:     now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if ex.hasMessage() {
			mem.MessageCount = 1
		}
		if mem.Preferences == nil {
			mem.Preferences = map[string]string{}
		}
		return m.store.SaveMemory(ctx, mem)
	}

	existing.Summary = m.mergeSummaries(ctx, existing.Summary, exchangeSummary)
	existing.RecentProducts = truncate(append(existing.RecentProducts, ex.Products...), maxRecentProducts)
	existing.Tags = dedupe(append(existing.Tags, ex.Tags...))
	if existing.Preferences == nil {
		existing.Preferences = map[string]string{}
	}
	for k, v := range ex.Preferences {
		existing.Preferences[k] = v
	}
	if ex.NewConversation {
		existing.ConversationCount++
	}
	if ex.hasMessage() {
		existing.MessageCount++
	}
	existing.LastContactAt = now
	existing.UpdatedAt = now

	return m.store.SaveMemory(ctx, existing)
}

// summarizeExchange condenses one exchange into a sentence or two. A
// summarization failure falls back to trimmed raw text so the update is
// never lost.
func (m *Manager) summarizeExchange(ctx context.Context, ex Exchange) string {
	if !ex.hasMessage() {
		return ""
	}
	raw := "Cliente: " + ex.CustomerText + "\nAtendente: " + ex.AIText
	if m.summarizer == nil {
		return clip(raw, 400)
	}

	resp, err := m.summarizer.Complete(ctx, &llm.CompletionRequest{
		Model:     m.model,
		System:    "Resuma a interação abaixo em no máximo 2 frases, priorizando nome do cliente, preferências e problemas recorrentes.",
		Messages:  []llm.ChatMessage{{Role: llm.RoleUser, Content: raw}},
		MaxTokens: 200,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		m.logger.Warn("exchange summarization failed, using raw text", zap.Error(err))
		return clip(raw, 400)
	}
	return strings.TrimSpace(resp.Content)
}

// mergeSummaries combines the running summary with the new exchange
// summary, constrained to a few sentences. Falls back to concatenation.
func (m *Manager) mergeSummaries(ctx context.Context, old, latest string) string {
	if old == "" {
		return latest
	}
	if latest == "" {
		return old
	}
	if m.summarizer == nil {
		return clip(old+" "+latest, 800)
	}

	resp, err := m.summarizer.Complete(ctx, &llm.CompletionRequest{
		Model:     m.model,
		System:    "Combine os dois resumos de cliente abaixo em um único resumo de no máximo 4 frases, priorizando nome, preferências e problemas recorrentes.",
		Messages:  []llm.ChatMessage{{Role: llm.RoleUser, Content: "Resumo atual: " + old + "\n\nNova interação: " + latest}},
		MaxTokens: 300,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		m.logger.Warn("summary merge failed, concatenating", zap.Error(err))
		return clip(old+" "+latest, 800)
	}
	return strings.TrimSpace(resp.Content)
}

// FormatForPrompt renders a bounded memory block for the system prompt.
// The caveat instructs the model to treat history as secondary to the
// live request; naive inclusion made models surface stale topics
// unprompted.
func FormatForPrompt(mem *model.CustomerMemory) string {
	if mem == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("HISTÓRICO DO CLIENTE (contexto secundário — a conversa atual tem sempre prioridade; não mencione tópicos antigos sem o cliente pedir):\n")
	if mem.Summary != "" {
		b.WriteString("Resumo: " + mem.Summary + "\n")
	}
	if len(mem.RecentProducts) > 0 {
		b.WriteString("Produtos mencionados recentemente: " + strings.Join(mem.RecentProducts, ", ") + "\n")
	}
	if len(mem.Preferences) > 0 {
		b.WriteString("Preferências:")
		for k, v := range mem.Preferences {
			b.WriteString(" " + k + "=" + v + ";")
		}
		b.WriteString("\n")
	}
	if len(mem.Tags) > 0 {
		b.WriteString("Tags: " + strings.Join(mem.Tags, ", ") + "\n")
	}
	b.WriteString(fmt.Sprintf("Conversas anteriores: %d\n", mem.ConversationCount))

	return clip(b.String(), maxPromptChars)
}

func truncate(items []string, n int) []string {
	items = dedupe(items)
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// clip truncates s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
