package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pdfquiz/internal/ai"
	"pdfquiz/internal/config"
	"pdfquiz/internal/extract"
	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	"pdfquiz/internal/pkg/pdfextract"
	"pdfquiz/internal/rag"
	"pdfquiz/internal/vectorstore"
)

// The builders below are shared by the server and the ragctl CLI.

// NewVectorStore opens the configured backend. The returned close function
// is never nil.
func NewVectorStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (vectorstore.Store, func() error, error) {
	switch cfg.VectorStore.Backend {
	case config.VectorStoreChromem:
		store, err := vectorstore.NewPersistentChromemStore(cfg.Chromem.Path, cfg.Chromem.Compress)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case config.VectorStoreQdrant:
		store, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey,
			UseTLS:         cfg.Qdrant.UseTLS,
			Collection:     cfg.Qdrant.Collection,
			VectorSize:     uint64(cfg.Embedding.Dimension),
			RequestTimeout: cfg.Qdrant.RequestTimeout.Duration,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

func NewLLMClient() *ai.OpenAICompatibleClient {
	return ai.NewOpenAICompatibleClient(nil)
}

func NewEmbeddingClient(cfg *config.Config, api *ai.OpenAICompatibleClient, logger *zap.Logger) *ai.EmbeddingClient {
	return ai.NewEmbeddingClient(api, ai.EmbeddingConfig{
		BaseURL:           cfg.Embedding.BaseURL,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		Dimension:         cfg.Embedding.Dimension,
		BatchSize:         cfg.Embedding.BatchSize,
		MaxAttempts:       cfg.Embedding.MaxAttempts,
		RetryDelay:        cfg.Embedding.RetryDelay.Duration,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, logger)
}

func NewExtractor(cfg *config.Config, logger *zap.Logger) *extract.Extractor {
	logger = logging.OrNop(logger)
	if cfg.Ingest.EnableOCR && !extract.OCRAvailable {
		logger.Warn("ocr requested but this binary was built without the ocr tag; image-only pages will be skipped")
	}
	return extract.NewExtractor(
		pdfextract.Native{},
		extract.NewRasterizer(cfg.Ingest.OCRDPI),
		extract.NewOCREngine(),
		cfg.Ingest.OCRConcurrency,
		logger,
	)
}

func IngestDefaults(cfg *config.Config) model.IngestOptions {
	return model.IngestOptions{
		MinTextLength:      cfg.Ingest.MinTextLength,
		OCRLanguage:        cfg.Ingest.OCRLanguage,
		EnableOCR:          cfg.Ingest.EnableOCR,
		SkipImageOnlyPages: cfg.Ingest.SkipImageOnlyPages,
	}
}

func PipelineConfig(cfg *config.Config) rag.Config {
	return rag.Config{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		Namespaces: rag.Namespacer{
			Prefix:  cfg.Retrieval.NamespacePrefix,
			Default: cfg.Retrieval.DefaultNamespace,
		},
		PollInterval: cfg.Ingest.PollInterval.Duration,
		PollAttempts: cfg.Ingest.PollAttempts,
		Retriever: rag.RetrieverConfig{
			EmptyRetryDelay: cfg.Retrieval.EmptyRetryDelay.Duration,
			PageFetchLimit:  cfg.Retrieval.PageFetchLimit,
			BroadQuery:      cfg.Retrieval.BroadQuery,
		},
		Assembler: rag.Assembler{
			MinChars: cfg.Retrieval.MinContextChars,
			MaxChars: cfg.Retrieval.MaxContextChars,
		},
	}
}

func NewPipeline(cfg *config.Config, store vectorstore.Store, embedder rag.Embedder, notifier rag.ReadyNotifier, logger *zap.Logger) (*rag.Pipeline, error) {
	return rag.NewPipeline(rag.Deps{
		Extractor: NewExtractor(cfg, logger),
		Embedder:  embedder,
		Store:     store,
		Notifier:  notifier,
	}, PipelineConfig(cfg), logger)
}
