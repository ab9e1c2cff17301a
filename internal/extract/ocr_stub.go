//go:build !ocr

package extract

import "context"

// OCRAvailable reports whether this binary was built with the ocr tag.
const OCRAvailable = false

type unavailable struct{}

// NewRasterizer returns a rasterizer that always reports ErrOCRUnavailable.
// Build with -tags ocr to link MuPDF and tesseract.
func NewRasterizer(float64) Rasterizer {
	return unavailable{}
}

func NewOCREngine() OCREngine {
	return unavailable{}
}

func (unavailable) Open([]byte) (RasterDocument, error) {
	return nil, ErrOCRUnavailable
}

func (unavailable) Recognize(context.Context, []byte, string) (string, error) {
	return "", ErrOCRUnavailable
}
