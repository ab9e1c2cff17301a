// Package chunker splits page text into overlapping, page-attributed chunks.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"pdfquiz/internal/model"
)

var sentenceEnd = regexp.MustCompile(`([.!?;:]) `)

type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	// Sentence ends are marked with "\n" before splitting, so the splitter
	// prefers sentence breaks, then words, then a hard character cut.
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n", " ", ""}),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	return &Chunker{size: size, overlap: overlap, splitter: splitter}, nil
}

func (c *Chunker) Size() int {
	return c.size
}

// Normalize collapses every run of whitespace into one space and trims.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Chunk splits one page. A page with no text after normalizing yields nil.
func (c *Chunker) Chunk(page model.Page) ([]model.Chunk, error) {
	text := Normalize(page.Text)
	if text == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(sentenceEnd.ReplaceAllString(text, "$1\n"))
	if err != nil {
		return nil, fmt.Errorf("split page %d failed: %w", page.Number, err)
	}

	chunks := make([]model.Chunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ReplaceAll(part, "\n", " "))
		if part == "" {
			continue
		}
		chunks = append(chunks, model.Chunk{
			Text:       part,
			PageNumber: page.Number,
			Index:      len(chunks),
		})
	}
	return chunks, nil
}

// ChunkPages chunks every page in order.
func (c *Chunker) ChunkPages(pages []model.Page) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, page := range pages {
		chunks, err := c.Chunk(page)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}
