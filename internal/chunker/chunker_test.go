package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfquiz/internal/model"
)

func sampleText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %d explains how enzymes lower activation energy.\n\t", i)
		if i%4 == 3 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)
	_, err = New(100, 100)
	assert.Error(t, err)
	_, err = New(100, -1)
	assert.Error(t, err)

	c, err := New(100, 20)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Size())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\n\n b\t\tc \r\n"))
	assert.Equal(t, "", Normalize(" \n\t "))
}

func TestChunkRespectsSizeAndKeepsPage(t *testing.T) {
	c, err := New(200, 50)
	require.NoError(t, err)

	chunks, err := c.Chunk(model.Page{Number: 7, Text: sampleText(30)})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 200)
		assert.Equal(t, 7, ch.PageNumber)
		assert.Equal(t, i, ch.Index)
		assert.NotContains(t, ch.Text, "\n")
		assert.Equal(t, strings.TrimSpace(ch.Text), ch.Text)
	}
}

func TestChunkCoversEveryWord(t *testing.T) {
	c, err := New(120, 30)
	require.NoError(t, err)

	text := sampleText(25)
	chunks, err := c.Chunk(model.Page{Number: 1, Text: text})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, ch := range chunks {
		for _, w := range strings.Fields(ch.Text) {
			seen[w] = true
		}
	}
	for _, w := range strings.Fields(Normalize(text)) {
		assert.True(t, seen[w], "word %q missing from chunks", w)
	}
}

func TestChunkOverlapsAdjacentChunks(t *testing.T) {
	c, err := New(50, 20)
	require.NoError(t, err)

	words := make([]string, 100)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	chunks, err := c.Chunk(model.Page{Number: 1, Text: strings.Join(words, " ")})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i].Text)[0]
		assert.Contains(t, strings.Fields(chunks[i-1].Text), first, "chunk %d does not overlap its predecessor", i)
	}
}

func TestChunkHardCutsLongWords(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk(model.Page{Number: 2, Text: strings.Repeat("x", 175)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 50)
	}
}

func TestChunkEmptyPage(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk(model.Page{Number: 3, Text: " \n\t "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkPagesNeverSpansPages(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	chunks, err := c.ChunkPages([]model.Page{
		{Number: 1, Text: "Short page one."},
		{Number: 2, Text: ""},
		{Number: 3, Text: "Short page three."},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Short page one.", chunks[0].Text)
	assert.Equal(t, 3, chunks[1].PageNumber)
	assert.Equal(t, 0, chunks[1].Index)
}
