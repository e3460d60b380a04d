// Package router selects the AI persona for a new conversation.
package router

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and trims the text. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		stripped = text
	}
	return strings.TrimSpace(strings.ToLower(stripped))
}

// CountMatches counts how many of the agent's keywords occur as substrings
// of the normalized message.
func CountMatches(message string, keywords []string) int {
	normalized := Normalize(message)
	count := 0
	for _, kw := range keywords {
		kw = Normalize(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(normalized, kw) {
			count++
		}
	}
	return count
}

// Router picks the agent for a tenant's new conversation.
type Router struct {
	store  *store.Store
	logger *logger.Logger
}

// New creates a router.
func New(st *store.Store, log *logger.Logger) *Router {
	return &Router{store: st, logger: log}
}

// Select returns the agent that should handle a conversation opened by the
// given message, or nil when the conversation stays human-routed. Business
// conditions never produce an error; on storage failure it logs and
// returns nil so conversation creation is never blocked by routing.
func (r *Router) Select(ctx context.Context, tenantID, messageText string) *model.Agent {
	agents, err := r.store.ListActiveAgents(ctx, tenantID)
	if err != nil {
		r.logger.Error("agent routing failed, conversation stays human-routed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil
	}
	return SelectFrom(agents, messageText)
}

// SelectFrom applies the deterministic selection algorithm over an already
// loaded agent list:
//  1. no active agents: nil
//  2. exactly one: that one
//  3. best keyword match count, ties broken by highest priority
//  4. no matches: the default agent
//  5. no default: the highest-priority agent
func SelectFrom(agents []model.Agent, messageText string) *model.Agent {
	switch len(agents) {
	case 0:
		return nil
	case 1:
		return &agents[0]
	}

	var best *model.Agent
	bestCount := 0
	for i := range agents {
		count := CountMatches(messageText, agents[i].Keywords)
		if count == 0 {
			continue
		}
		if best == nil || count > bestCount || (count == bestCount && agents[i].Priority > best.Priority) {
			best = &agents[i]
			bestCount = count
		}
	}
	if best != nil {
		return best
	}

	for i := range agents {
		if agents[i].IsDefault {
			return &agents[i]
		}
	}

	top := &agents[0]
	for i := range agents {
		if agents[i].Priority > top.Priority {
			top = &agents[i]
		}
	}
	return top
}
