//go:build ocr

package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// OCRAvailable reports whether this binary was built with the ocr tag.
const OCRAvailable = true

type fitzRasterizer struct {
	dpi float64
}

// NewRasterizer renders pages with MuPDF.
func NewRasterizer(dpi float64) Rasterizer {
	if dpi <= 0 {
		dpi = 200
	}
	return fitzRasterizer{dpi: dpi}
}

func (r fitzRasterizer) Open(data []byte) (RasterDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf with mupdf failed: %w", err)
	}
	return &fitzDocument{doc: doc, dpi: r.dpi}, nil
}

type fitzDocument struct {
	mu  sync.Mutex
	doc *fitz.Document
	dpi float64
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(number int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.ImagePNG(number-1, d.dpi)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}

// tesseractEngine reports ErrOCRUnavailable only for engine problems: no
// tesseract data directory or a language without traineddata. Failures on a
// single image are returned as plain errors.
type tesseractEngine struct {
	once      sync.Once
	installed []string
	listErr   error
}

// NewOCREngine returns a tesseract engine. Each call to Recognize gets its own
// client since gosseract clients are not safe for concurrent use.
func NewOCREngine() OCREngine {
	return &tesseractEngine{}
}

func (e *tesseractEngine) checkLanguage(language string) error {
	e.once.Do(func() {
		e.installed, e.listErr = gosseract.GetAvailableLanguages()
	})
	if e.listErr != nil {
		return fmt.Errorf("%w: list tesseract languages: %v", ErrOCRUnavailable, e.listErr)
	}
	if missing := missingLanguages(language, e.installed); len(missing) > 0 {
		return fmt.Errorf("%w: no traineddata for %s", ErrOCRUnavailable, strings.Join(missing, ","))
	}
	return nil
}

func (e *tesseractEngine) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.checkLanguage(language); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(language); err != nil {
		return "", fmt.Errorf("%w: set language: %v", ErrOCRUnavailable, err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load page image failed: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize page image failed: %w", err)
	}
	return text, nil
}
