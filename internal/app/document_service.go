package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfquiz/internal/ai"
	"pdfquiz/internal/cache"
	"pdfquiz/internal/extract"
	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	"pdfquiz/internal/rag"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrEnqueueFailed    = errors.New("enqueue ingestion failed")
)

const (
	groundedPrompt = "You are a study assistant for an uploaded PDF. Answer the question using only the context below. " +
		"Cite page numbers like (page 3). If the context does not contain the answer, say so. Do not make up facts."
	ungroundedPrompt = "You are a study assistant. No passage of the uploaded document matched this question, " +
		"so answer from general knowledge and say that the answer is not taken from the document."
)

type Pipeline interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	GetContext(ctx context.Context, query, chatID string, topK int) (string, error)
	Namespace(chatID string) string
}

type DocumentStore interface {
	Create(ctx context.Context, doc *model.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*model.DocumentRecord, error)
	ListByChatID(ctx context.Context, chatID string) ([]model.DocumentRecord, error)
	MarkReady(ctx context.Context, id string, pageCount, chunkCount int, visible bool) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type ContextCache interface {
	Key(ctx context.Context, namespace, query string, topK int) (string, error)
	Get(ctx context.Context, key string) (*cache.ContextEntry, bool, error)
	Set(ctx context.Context, key string, entry cache.ContextEntry) error
	Invalidate(ctx context.Context, namespace string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job model.IngestJob) error
}

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type DocumentServiceConfig struct {
	Defaults    model.IngestOptions
	DefaultTopK int
	Chat        ai.ChatConfig
}

// DocumentService owns the document lifecycle around the ingestion pipeline:
// record keeping, async hand-off, cache invalidation and answering.
type DocumentService struct {
	pipeline Pipeline
	docs     DocumentStore
	cache    ContextCache
	queue    JobQueue
	llm      Completer
	cfg      DocumentServiceConfig
	logger   *zap.Logger
}

// NewDocumentService accepts nil cache, queue and llm. Without a queue every
// upload is processed synchronously; without an llm Ask is unavailable.
func NewDocumentService(
	pipeline Pipeline,
	docs DocumentStore,
	contextCache ContextCache,
	queue JobQueue,
	llm Completer,
	cfg DocumentServiceConfig,
	logger *zap.Logger,
) *DocumentService {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	return &DocumentService{
		pipeline: pipeline,
		docs:     docs,
		cache:    contextCache,
		queue:    queue,
		llm:      llm,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
	}
}

func (s *DocumentService) DefaultOptions() model.IngestOptions {
	return s.cfg.Defaults
}

type UploadInput struct {
	ChatID   string
	FileName string
	Content  []byte
	Options  model.IngestOptions
	Async    bool
}

// Upload records the document and ingests it, inline or through the job
// queue. A failed inline ingestion still returns the failed record together
// with the ingestion error.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.DocumentRecord, error) {
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		fileName = "document.pdf"
	}

	record := &model.DocumentRecord{
		ID:        uuid.NewString(),
		ChatID:    strings.TrimSpace(input.ChatID),
		Namespace: s.pipeline.Namespace(input.ChatID),
		FileName:  fileName,
		Status:    model.DocumentProcessing,
	}
	if err := s.docs.Create(ctx, record); err != nil {
		return nil, err
	}

	job := model.IngestJob{
		DocumentID: record.ID,
		ChatID:     record.ChatID,
		FileName:   record.FileName,
		Content:    input.Content,
		Options:    input.Options,
	}

	if input.Async && s.queue != nil {
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error("enqueue ingest job failed", zap.String("document_id", record.ID), zap.Error(err))
			if markErr := s.docs.MarkFailed(ctx, record.ID, "could not queue this document, please retry"); markErr != nil {
				s.logger.Error("mark document failed failed", zap.String("document_id", record.ID), zap.Error(markErr))
			}
			return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
		}
		return record, nil
	}

	return s.Process(ctx, job)
}

// Process runs the pipeline for a recorded document and stores the outcome.
func (s *DocumentService) Process(ctx context.Context, job model.IngestJob) (*model.DocumentRecord, error) {
	log := s.logger.With(zap.String("document_id", job.DocumentID), zap.String("chat_id", job.ChatID))

	result, err := s.pipeline.Ingest(ctx, rag.IngestRequest{
		Content:    job.Content,
		ChatID:     job.ChatID,
		FileName:   job.FileName,
		DocumentID: job.DocumentID,
		Options:    toExtractOptions(job.Options),
	})
	if err != nil {
		reason := rag.Describe(err)
		if markErr := s.docs.MarkFailed(ctx, job.DocumentID, reason); markErr != nil {
			log.Error("mark document failed failed", zap.Error(markErr))
		}
		return s.reload(ctx, job.DocumentID, err)
	}

	if err := s.docs.MarkReady(ctx, job.DocumentID, result.PageCount, result.ChunkCount, result.Visible); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, result.Namespace); err != nil {
			log.Warn("invalidate context cache failed", zap.String("namespace", result.Namespace), zap.Error(err))
		}
	}
	return s.reload(ctx, job.DocumentID, nil)
}

func (s *DocumentService) reload(ctx context.Context, id string, cause error) (*model.DocumentRecord, error) {
	record, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	if record == nil {
		return nil, errors.Join(cause, ErrDocumentNotFound)
	}
	return record, cause
}

func (s *DocumentService) GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	record, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrDocumentNotFound
	}
	return record, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, chatID string) ([]model.DocumentRecord, error) {
	return s.docs.ListByChatID(ctx, strings.TrimSpace(chatID))
}

type ContextResult struct {
	Context          string `json:"context"`
	PageNotAvailable bool   `json:"page_not_available"`
	Page             int    `json:"page,omitempty"`
}

// GetContext returns the assembled context for query. A request for a page
// the conversation does not hold is reported on the result, not as an error.
func (s *DocumentService) GetContext(ctx context.Context, chatID, query string, topK int) (*ContextResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	namespace := s.pipeline.Namespace(chatID)

	cacheKey, cached := s.lookupContext(ctx, namespace, query, topK)
	if cached != nil {
		return entryResult(*cached), nil
	}

	text, err := s.pipeline.GetContext(ctx, query, chatID, topK)
	var entry cache.ContextEntry
	var pageErr *rag.PageNotAvailableError
	switch {
	case errors.As(err, &pageErr):
		entry.MissingPage = pageErr.Page
	case err != nil:
		return nil, err
	default:
		entry.Context = text
	}

	// Empty answers are not cached; the namespace may still be catching up.
	if cacheKey != "" && (entry.Context != "" || entry.MissingPage > 0) {
		if err := s.cache.Set(ctx, cacheKey, entry); err != nil {
			s.logger.Warn("context cache store failed", zap.String("namespace", namespace), zap.Error(err))
		}
	}
	return entryResult(entry), nil
}

// lookupContext returns the cache key pinned to the namespace version seen
// before retrieval, plus the cached entry on a hit. An empty key means the
// result must not be cached.
func (s *DocumentService) lookupContext(ctx context.Context, namespace, query string, topK int) (string, *cache.ContextEntry) {
	if s.cache == nil {
		return "", nil
	}
	key, err := s.cache.Key(ctx, namespace, query, topK)
	if err != nil {
		s.logger.Warn("context cache lookup failed", zap.String("namespace", namespace), zap.Error(err))
		return "", nil
	}
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("context cache lookup failed", zap.String("namespace", namespace), zap.Error(err))
		return "", nil
	}
	if !ok {
		return key, nil
	}
	return key, entry
}

func entryResult(entry cache.ContextEntry) *ContextResult {
	return &ContextResult{
		Context:          entry.Context,
		PageNotAvailable: entry.MissingPage > 0,
		Page:             entry.MissingPage,
	}
}

type AskInput struct {
	ChatID   string
	Question string
	TopK     int
}

type AskResult struct {
	Answer           string `json:"answer"`
	Grounded         bool   `json:"grounded"`
	PageNotAvailable bool   `json:"page_not_available"`
	Context          string `json:"context,omitempty"`
}

func (s *DocumentService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	return s.ask(ctx, input, nil)
}

// AskStream is Ask with the answer relayed to onChunk as it is generated.
func (s *DocumentService) AskStream(ctx context.Context, input AskInput, onChunk func(string) error) (*AskResult, error) {
	return s.ask(ctx, input, onChunk)
}

func (s *DocumentService) ask(ctx context.Context, input AskInput, onChunk func(string) error) (*AskResult, error) {
	if s.llm == nil {
		return nil, errors.New("no language model configured")
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidInput)
	}

	found, err := s.GetContext(ctx, input.ChatID, question, input.TopK)
	if err != nil {
		return nil, err
	}
	if found.PageNotAvailable {
		answer := fmt.Sprintf("Page %d is not available in the uploaded document. Check the page number and try again.", found.Page)
		if onChunk != nil {
			if err := onChunk(answer); err != nil {
				return nil, err
			}
		}
		return &AskResult{Answer: answer, PageNotAvailable: true}, nil
	}

	grounded := found.Context != ""
	messages := []ai.ChatMessage{{Role: "system", Content: ungroundedPrompt}}
	user := "Question: " + question
	if grounded {
		messages[0].Content = groundedPrompt
		user = "Context:\n" + found.Context + "\n\nQuestion: " + question + "\n\nAnswer:"
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: user})

	var answer string
	if onChunk != nil {
		answer, err = s.llm.StreamComplete(ctx, s.cfg.Chat, messages, onChunk)
	} else {
		answer, err = s.llm.Complete(ctx, s.cfg.Chat, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}
	return &AskResult{Answer: answer, Grounded: grounded, Context: found.Context}, nil
}

func toExtractOptions(o model.IngestOptions) extract.Options {
	return extract.Options{
		MinTextLength:      o.MinTextLength,
		OCRLanguage:        o.OCRLanguage,
		EnableOCR:          o.EnableOCR,
		SkipImageOnlyPages: o.SkipImageOnlyPages,
	}
}
