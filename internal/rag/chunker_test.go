package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmpty(t *testing.T) {
	c := NewChunker()
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestSplitShortText(t *testing.T) {
	c := NewChunker()
	chunks := c.Split("Entregamos em todo o Brasil.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Entregamos em todo o Brasil.", chunks[0])
}

func TestSplitRespectsWindow(t *testing.T) {
	c := Chunker{MaxTokens: 10, OverlapTokens: 2, CharsPerToken: 4}
	window := c.MaxTokens * c.CharsPerToken

	text := strings.Repeat("frase curta. ", 100)
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.NotEmpty(t, chunk, "chunk %d", i)
		assert.LessOrEqual(t, len([]rune(chunk)), window, "chunk %d", i)
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	c := Chunker{MaxTokens: 10, OverlapTokens: 0, CharsPerToken: 4}

	// A terminator sits inside the back half of the 40-rune window.
	text := "Primeira frase aqui mesmo. Segunda frase que continua bem depois do corte."
	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Primeira frase aqui mesmo.", chunks[0])
}

func TestSplitCoversWholeText(t *testing.T) {
	c := Chunker{MaxTokens: 15, OverlapTokens: 3, CharsPerToken: 4}

	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "A sentenca de numero %d fala sobre o envio do pedido %d. ", i, i*7)
	}
	text := strings.TrimSpace(b.String())

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	// Every chunk is a contiguous piece of the source and consecutive
	// chunks overlap or touch (modulo trimmed whitespace), so nothing
	// between them is lost.
	last := -1
	covered := 0
	for i, chunk := range chunks {
		idx := strings.Index(text[last+1:], chunk)
		require.GreaterOrEqual(t, idx, 0, "chunk %d is not a substring", i)
		start := last + 1 + idx
		assert.Empty(t, strings.TrimSpace(text[min(covered, start):start]),
			"gap before chunk %d", i)
		if end := start + len(chunk); end > covered {
			covered = end
		}
		last = start
	}
	assert.Equal(t, len(text), covered, "tail of text not covered")
}

func TestSplitTerminatesWithoutBoundaries(t *testing.T) {
	c := Chunker{MaxTokens: 5, OverlapTokens: 4, CharsPerToken: 4}

	// No terminators at all and overlap nearly as large as the window.
	text := strings.Repeat("a", 5000)
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	assert.GreaterOrEqual(t, total, len(text))
}
