// Package pdfextract reads the native text layer of a PDF page by page.
package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("pdf document is empty")

// Native extracts embedded text with ledongthuc/pdf.
type Native struct{}

// ExtractPages returns one entry per page, index 0 holding page 1. Pages with
// no text layer yield an empty string. Malformed input that makes the parser
// panic is reported as an error.
func (Native) ExtractPages(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	pages = make([]string, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		// Font names are page-scoped resources, so each page resolves its own.
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read text of page %d failed: %w", i, err)
		}
		pages[i-1] = text
	}
	return pages, nil
}

// ExtractPages reads r fully and extracts its pages.
func ExtractPages(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf failed: %w", err)
	}
	return Native{}.ExtractPages(b)
}
