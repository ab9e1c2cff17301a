// Package extract turns PDF bytes into per-page text. Native text is used
// where the page carries enough of it and OCR fills in the rest.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
)

var (
	ErrNoExtractableContent = errors.New("no extractable content")
	ErrUnreadableDocument   = errors.New("unreadable document")
	ErrOCRUnavailable       = errors.New("ocr unavailable")
)

type Options struct {
	MinTextLength      int
	OCRLanguage        string
	EnableOCR          bool
	SkipImageOnlyPages bool
}

func DefaultOptions() Options {
	return Options{
		MinTextLength:      50,
		OCRLanguage:        "eng",
		EnableOCR:          true,
		SkipImageOnlyPages: true,
	}
}

// TextExtractor reads the embedded text layer. Index 0 is page 1.
type TextExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

type Rasterizer interface {
	Open(data []byte) (RasterDocument, error)
}

// RasterDocument renders pages by 1-based number.
type RasterDocument interface {
	NumPage() int
	RenderPage(number int) ([]byte, error)
	Close() error
}

type OCREngine interface {
	Recognize(ctx context.Context, image []byte, language string) (string, error)
}

type Extractor struct {
	native      TextExtractor
	rasterizer  Rasterizer
	ocr         OCREngine
	concurrency int
	logger      *zap.Logger
}

func NewExtractor(native TextExtractor, rasterizer Rasterizer, ocr OCREngine, concurrency int, logger *zap.Logger) *Extractor {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Extractor{
		native:      native,
		rasterizer:  rasterizer,
		ocr:         ocr,
		concurrency: concurrency,
		logger:      logging.OrNop(logger),
	}
}

type pageDecision struct {
	number int
	native string
}

// Extract returns the non-empty pages of the document sorted by page number.
func (e *Extractor) Extract(ctx context.Context, data []byte, opts Options) ([]model.Page, error) {
	if opts.OCRLanguage == "" {
		opts.OCRLanguage = "eng"
	}
	ocrEnabled := opts.EnableOCR && e.rasterizer != nil && e.ocr != nil

	nativePages, err := e.native.ExtractPages(data)
	if err != nil {
		if !ocrEnabled {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
		}
		e.logger.Warn("native extraction failed, retrying with ocr only", zap.Error(err))
		pages, ocrErr := e.ocrDocument(ctx, data, opts)
		if ocrErr != nil {
			return nil, fmt.Errorf("%w: native: %v; ocr: %v", ErrUnreadableDocument, err, ocrErr)
		}
		return finish(pages)
	}

	pages := make([]model.Page, 0, len(nativePages))
	var candidates []pageDecision
	for i, raw := range nativePages {
		number := i + 1
		text := strings.TrimSpace(raw)
		length := utf8.RuneCountInString(text)
		switch {
		case length > 0 && length >= opts.MinTextLength:
			pages = append(pages, model.Page{Number: number, Text: text, Method: model.ExtractionNative})
		case length > 0:
			candidates = append(candidates, pageDecision{number: number, native: text})
		case opts.SkipImageOnlyPages:
			e.logger.Debug("skipping image-only page", zap.Int("page", number))
		default:
			candidates = append(candidates, pageDecision{number: number})
		}
	}

	if len(candidates) > 0 {
		recognized := map[int]string{}
		if ocrEnabled {
			recognized = e.ocrCandidates(ctx, data, candidates, opts)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, c := range candidates {
			text := recognized[c.number]
			switch {
			case utf8.RuneCountInString(text) >= opts.MinTextLength && text != "":
				pages = append(pages, model.Page{Number: c.number, Text: text, Method: model.ExtractionOCR})
			case c.native != "":
				pages = append(pages, model.Page{Number: c.number, Text: c.native, Method: model.ExtractionNative})
			default:
				e.logger.Debug("dropping page without text", zap.Int("page", c.number))
			}
		}
	}

	return finish(pages)
}

func finish(pages []model.Page) ([]model.Page, error) {
	if len(pages) == 0 {
		return nil, ErrNoExtractableContent
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// ocrCandidates never fails the extraction; pages it cannot read keep their
// native text.
func (e *Extractor) ocrCandidates(ctx context.Context, data []byte, candidates []pageDecision, opts Options) map[int]string {
	doc, err := e.rasterizer.Open(data)
	if err != nil {
		e.logOCRFailure(err)
		return map[int]string{}
	}
	defer doc.Close()

	numbers := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if c.number <= doc.NumPage() {
			numbers = append(numbers, c.number)
		}
	}
	texts, errs := e.recognizePages(ctx, doc, numbers, opts.OCRLanguage)

	out := make(map[int]string, len(numbers))
	var unavailable error
	for i, number := range numbers {
		switch {
		case errs[i] == nil:
			out[number] = texts[i]
		case errors.Is(errs[i], ErrOCRUnavailable):
			if unavailable == nil {
				unavailable = errs[i]
			}
		default:
			e.logger.Warn("ocr failed for page", zap.Int("page", number), zap.Error(errs[i]))
		}
	}
	if unavailable != nil {
		e.logOCRFailure(unavailable)
	}
	return out
}

// ocrDocument reads every page through OCR. It serves documents whose text
// layer cannot be parsed at all.
func (e *Extractor) ocrDocument(ctx context.Context, data []byte, opts Options) ([]model.Page, error) {
	doc, err := e.rasterizer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open document for ocr failed: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("document has no pages to render")
	}
	numbers := make([]int, total)
	for i := range numbers {
		numbers[i] = i + 1
	}
	texts, errs := e.recognizePages(ctx, doc, numbers, opts.OCRLanguage)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages := make([]model.Page, 0, total)
	var firstErr error
	failed := 0
	for i, number := range numbers {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			e.logger.Warn("ocr failed for page", zap.Int("page", number), zap.Error(errs[i]))
			continue
		}
		if texts[i] == "" || utf8.RuneCountInString(texts[i]) < opts.MinTextLength {
			e.logger.Debug("dropping page with too little ocr text", zap.Int("page", number))
			continue
		}
		pages = append(pages, model.Page{Number: number, Text: texts[i], Method: model.ExtractionOCR})
	}
	if failed == total {
		return nil, firstErr
	}
	return pages, nil
}

// recognizePages runs OCR with bounded concurrency. Results are positional.
func (e *Extractor) recognizePages(ctx context.Context, doc RasterDocument, numbers []int, language string) ([]string, []error) {
	texts := make([]string, len(numbers))
	errs := make([]error, len(numbers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, number := range numbers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			image, err := doc.RenderPage(number)
			if err != nil {
				errs[i] = fmt.Errorf("render page %d failed: %w", number, err)
				return nil
			}
			text, err := e.ocr.Recognize(gctx, image, language)
			if err != nil {
				errs[i] = err
				return nil
			}
			texts[i] = strings.TrimSpace(text)
			return nil
		})
	}
	_ = g.Wait()
	return texts, errs
}

func (e *Extractor) logOCRFailure(err error) {
	if errors.Is(err, ErrOCRUnavailable) {
		e.logger.Warn("ocr engine unavailable, continuing with native text only", zap.Error(err))
		return
	}
	e.logger.Warn("ocr pass failed, continuing with native text only", zap.Error(err))
}
