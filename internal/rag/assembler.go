package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pdfquiz/internal/model"
)

const blockSeparator = "\n\n"

// Assembler formats search results as page-cited context for a prompt.
type Assembler struct {
	MinChars int
	MaxChars int
}

func DefaultAssembler() Assembler {
	return Assembler{MinChars: 40, MaxChars: 12000}
}

// Assemble returns "Page {n}: {text}" blocks separated by blank lines, in
// input order. It returns "" when the usable text is shorter than MinChars.
// Output is bounded by MaxChars; the last block that fits is truncated.
func (a Assembler) Assemble(results []model.SearchResult) string {
	type block struct {
		page int
		text string
	}
	blocks := make([]block, 0, len(results))
	usable := 0
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		blocks = append(blocks, block{page: r.PageNumber, text: text})
		usable += utf8.RuneCountInString(text)
	}
	if len(blocks) == 0 || usable < a.MinChars {
		return ""
	}

	var b strings.Builder
	used := 0
	for i, blk := range blocks {
		entry := fmt.Sprintf("Page %d: %s", blk.page, blk.text)
		if i > 0 {
			entry = blockSeparator + entry
		}
		size := utf8.RuneCountInString(entry)
		if a.MaxChars > 0 && used+size > a.MaxChars {
			remaining := a.MaxChars - used
			header := utf8.RuneCountInString(entry) - utf8.RuneCountInString(blk.text)
			if remaining > header {
				b.WriteString(truncateRunes(entry, remaining))
			}
			break
		}
		b.WriteString(entry)
		used += size
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
