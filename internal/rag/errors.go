package rag

import (
	"errors"
	"fmt"

	"pdfquiz/internal/ai"
	"pdfquiz/internal/extract"
)

var (
	ErrNoExtractableContent        = extract.ErrNoExtractableContent
	ErrUnreadableDocument          = extract.ErrUnreadableDocument
	ErrOCRUnavailable              = extract.ErrOCRUnavailable
	ErrEmbeddingServiceUnavailable = ai.ErrEmbeddingServiceUnavailable
	ErrIndexVisibilityTimeout      = errors.New("index visibility not confirmed")
	ErrPageNotAvailable            = errors.New("page not available")
	ErrChunkVectorMismatch         = errors.New("chunk and vector counts differ")
)

// UserFacingIngestFailure is the message shown when a document cannot be used.
const UserFacingIngestFailure = "could not process this document, it may be image-only or corrupted"

// PageNotAvailableError is returned when a query names a page that has no
// indexed content.
type PageNotAvailableError struct {
	Page int
}

func (e *PageNotAvailableError) Error() string {
	return fmt.Sprintf("page %d not available", e.Page)
}

func (e *PageNotAvailableError) Is(target error) bool {
	return target == ErrPageNotAvailable
}

// IngestError records which stage of ingestion failed.
type IngestError struct {
	Stage string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s failed: %v", e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func (e *IngestError) UserMessage() string {
	if errors.Is(e.Err, ErrEmbeddingServiceUnavailable) {
		return "could not process this document right now, the embedding service is unavailable"
	}
	return UserFacingIngestFailure
}
