// Package rag implements chunking, embedding and similarity retrieval for
// agent training sources.
package rag

import (
	"strings"
)

// Chunker splits text into overlapping windows sized by a token budget
// approximated at a fixed characters-per-token ratio.
type Chunker struct {
	MaxTokens     int
	OverlapTokens int
	CharsPerToken int
}

// NewChunker returns a chunker with the default budget: ~500-token chunks
// with ~100 tokens of overlap at 4 characters per token.
func NewChunker() Chunker {
	return Chunker{
		MaxTokens:     500,
		OverlapTokens: 100,
		CharsPerToken: 4,
	}
}

func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', ';':
		return true
	}
	return false
}

// Split chunks the text. A chunk boundary prefers the nearest sentence
// terminator within the back half of the window before falling back to a
// hard cut, and the loop always advances even when no terminator exists.
func (c Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	window := c.MaxTokens * c.CharsPerToken
	overlap := c.OverlapTokens * c.CharsPerToken
	if window <= 0 {
		window = 2000
	}
	if overlap >= window {
		overlap = window / 4
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + window
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := end
		for i := end - 1; i > start+window/2; i-- {
			if isBoundary(runes[i]) {
				cut = i + 1
				break
			}
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			// Guarantee forward progress for degenerate configurations.
			next = cut
		}
		start = next
	}

	return chunks
}
