package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfquiz/internal/chunker"
	"pdfquiz/internal/extract"
	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	"pdfquiz/internal/vectorstore"
)

// PageExtractor is satisfied by *extract.Extractor.
type PageExtractor interface {
	Extract(ctx context.Context, data []byte, opts extract.Options) ([]model.Page, error)
}

// ReadyNotifier is told when a document can be queried. Its errors are
// logged and never fail ingestion.
type ReadyNotifier interface {
	DocumentReady(ctx context.Context, event model.DocumentReadyEvent) error
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int

	Namespaces Namespacer

	PollInterval time.Duration
	PollAttempts int

	Retriever RetrieverConfig
	Assembler Assembler
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Namespaces:   DefaultNamespacer(),
		PollInterval: 3 * time.Second,
		PollAttempts: 10,
		Retriever: RetrieverConfig{
			EmptyRetryDelay: 2 * time.Second,
			PageFetchLimit:  200,
			BroadQuery:      "document content summary",
		},
		Assembler: DefaultAssembler(),
	}
}

type Deps struct {
	Extractor PageExtractor
	Embedder  Embedder
	Store     vectorstore.Store
	Notifier  ReadyNotifier
}

// Pipeline runs extract, chunk, embed and index on the write path and
// retrieve and assemble on the read path.
type Pipeline struct {
	extractor PageExtractor
	chunker   *chunker.Chunker
	embedder  Embedder
	indexer   *Indexer
	retriever *Retriever
	assembler Assembler
	ns        Namespacer
	notifier  ReadyNotifier
	logger    *zap.Logger
}

func NewPipeline(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if deps.Extractor == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, errors.New("pipeline needs an extractor, an embedder and a store")
	}
	c, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.Namespaces.Default == "" {
		cfg.Namespaces = DefaultNamespacer()
	}
	logger = logging.OrNop(logger)
	return &Pipeline{
		extractor: deps.Extractor,
		chunker:   c,
		embedder:  deps.Embedder,
		indexer:   NewIndexer(deps.Store, cfg.PollInterval, cfg.PollAttempts, logger),
		retriever: NewRetriever(deps.Embedder, deps.Store, cfg.Retriever, logger),
		assembler: cfg.Assembler,
		ns:        cfg.Namespaces,
		notifier:  deps.Notifier,
		logger:    logger,
	}, nil
}

// SetNotifier replaces the ready notifier. It is meant for wiring at startup.
func (p *Pipeline) SetNotifier(n ReadyNotifier) {
	p.notifier = n
}

func (p *Pipeline) Namespace(chatID string) string {
	return p.ns.For(chatID)
}

type IngestRequest struct {
	Content    []byte
	ChatID     string
	FileName   string
	DocumentID string
	Options    extract.Options
	Tags       map[string]string
}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	Namespace  string `json:"namespace"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	Visible    bool   `json:"visible"`
}

// Ingest makes a PDF queryable under the chat's namespace. Failures are
// returned as *IngestError.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	started := time.Now()
	res, err := p.ingest(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	ingestDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}
	namespace := p.ns.For(req.ChatID)
	log := p.logger.With(
		zap.String("document_id", req.DocumentID),
		zap.String("namespace", namespace),
		zap.String("file_name", req.FileName),
	)

	pages, err := p.extractor.Extract(ctx, req.Content, req.Options)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		return nil, &IngestError{Stage: "extract", Err: err}
	}
	for _, page := range pages {
		pagesExtracted.WithLabelValues(string(page.Method)).Inc()
	}

	chunks, err := p.chunker.ChunkPages(pages)
	if err != nil {
		return nil, &IngestError{Stage: "chunk", Err: err}
	}
	if len(chunks) == 0 {
		return nil, &IngestError{Stage: "chunk", Err: ErrNoExtractableContent}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		log.Error("embedding failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, &IngestError{Stage: "embed", Err: err}
	}

	receipt, err := p.indexer.IndexChunks(ctx, namespace, chunks, vectors, IndexTags{
		ChatID:     req.ChatID,
		FileName:   req.FileName,
		DocumentID: req.DocumentID,
		Extra:      req.Tags,
	})
	if err != nil {
		log.Error("indexing failed", zap.Error(err))
		return nil, &IngestError{Stage: "index", Err: err}
	}

	result := &IngestResult{
		DocumentID: receipt.DocumentID,
		Namespace:  namespace,
		PageCount:  len(pages),
		ChunkCount: len(chunks),
		Visible:    receipt.Visible,
	}
	log.Info("document ingested",
		zap.Int("pages", result.PageCount),
		zap.Int("chunks", result.ChunkCount),
		zap.Bool("visible", result.Visible),
	)

	if p.notifier != nil {
		event := model.DocumentReadyEvent{
			DocumentID: result.DocumentID,
			ChatID:     req.ChatID,
			Namespace:  namespace,
			FileName:   req.FileName,
			PageCount:  result.PageCount,
			ChunkCount: result.ChunkCount,
			Visible:    result.Visible,
		}
		if err := p.notifier.DocumentReady(ctx, event); err != nil {
			log.Warn("ready notification failed", zap.Error(err))
		}
	}
	return result, nil
}

// Retrieve runs the retriever against the chat's namespace.
func (p *Pipeline) Retrieve(ctx context.Context, query, chatID string, topK int) ([]model.SearchResult, error) {
	return p.retriever.Retrieve(ctx, query, p.ns.For(chatID), topK)
}

// GetContext returns assembled context for query, or "" when nothing usable
// was found. A query for a missing page yields a *PageNotAvailableError.
func (p *Pipeline) GetContext(ctx context.Context, query, chatID string, topK int) (string, error) {
	results, err := p.Retrieve(ctx, query, chatID, topK)
	if err != nil {
		return "", err
	}
	return p.assembler.Assemble(results), nil
}

// Describe summarises an ingest failure for logs and API clients.
func Describe(err error) string {
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr.UserMessage()
	}
	return fmt.Sprintf("request failed: %v", err)
}
