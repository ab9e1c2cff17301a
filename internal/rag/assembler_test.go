package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"pdfquiz/internal/model"
)

func TestAssemble(t *testing.T) {
	a := DefaultAssembler()
	results := []model.SearchResult{
		{Text: "Photosynthesis converts light into chemical energy.", PageNumber: 3, Score: 0.9},
		{Text: "   ", PageNumber: 4, Score: 0.8},
		{Text: "Chlorophyll absorbs mostly blue and red light.", PageNumber: 1, Score: 0.7},
	}

	got := a.Assemble(results)
	assert.Equal(t,
		"Page 3: Photosynthesis converts light into chemical energy.\n\nPage 1: Chlorophyll absorbs mostly blue and red light.",
		got)
	assert.Equal(t, got, a.Assemble(results))
}

func TestAssembleTooLittleContext(t *testing.T) {
	a := DefaultAssembler()
	assert.Empty(t, a.Assemble(nil))
	assert.Empty(t, a.Assemble([]model.SearchResult{{Text: "short", PageNumber: 1}}))
	assert.Empty(t, a.Assemble([]model.SearchResult{{Text: "", PageNumber: 1}, {Text: "\n", PageNumber: 2}}))
}

func TestAssembleTruncatesLastBlock(t *testing.T) {
	a := Assembler{MinChars: 1, MaxChars: 60}
	results := []model.SearchResult{
		{Text: strings.Repeat("a", 30), PageNumber: 1},
		{Text: strings.Repeat("é", 40), PageNumber: 2},
		{Text: strings.Repeat("c", 40), PageNumber: 3},
	}

	got := a.Assemble(results)
	assert.Equal(t, 60, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(got, "Page 1: "+strings.Repeat("a", 30)+"\n\nPage 2: é"))
	assert.NotContains(t, got, "Page 3")
	assert.True(t, utf8.ValidString(got))
}

func TestAssembleDropsBlockWithoutRoomForText(t *testing.T) {
	a := Assembler{MinChars: 1, MaxChars: 45}
	got := a.Assemble([]model.SearchResult{
		{Text: strings.Repeat("x", 35), PageNumber: 1},
		{Text: "tail", PageNumber: 2},
	})
	assert.Equal(t, "Page 1: "+strings.Repeat("x", 35), got)
}
