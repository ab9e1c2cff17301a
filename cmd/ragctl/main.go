// Package main implements ragctl, which ingests PDFs into a local chromem
// database and prints the context retrieved for a question.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdfquiz/internal/bootstrap"
	"pdfquiz/internal/config"
	"pdfquiz/internal/logging"
	"pdfquiz/internal/rag"
)

var (
	configPath string
	dataDir    string
	logLevel   string
	chatID     string
	outputJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Ingest PDFs and query their context locally",
	Long: `ragctl runs the ingestion and retrieval pipeline against a chromem-go
database on disk. Embeddings come from the configured embedding service.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to $CONFIG_FILE or configs/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "chromem database directory (defaults to chromem.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().StringVar(&chatID, "chat", "", "conversation id; empty uses the shared namespace")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(contextCmd)
}

type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *rag.Pipeline
	closer   func() error
}

func (s *session) close() {
	if s.closer != nil {
		if err := s.closer(); err != nil {
			s.logger.Warn("close vector store failed", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

// openSession loads config and opens the local pipeline. The vector store is
// always chromem; the CLI never talks to Qdrant.
func openSession(ctx context.Context) (*session, error) {
	if configPath != "" {
		if err := os.Setenv("CONFIG_FILE", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	cfg.VectorStore.Backend = config.VectorStoreChromem
	if dataDir != "" {
		cfg.Chromem.Path = dataDir
	}

	logger, err := logging.New(logLevel, "console")
	if err != nil {
		return nil, err
	}

	store, closer, err := bootstrap.NewVectorStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	embedder := bootstrap.NewEmbeddingClient(cfg, bootstrap.NewLLMClient(), logger)
	pipeline, err := bootstrap.NewPipeline(cfg, store, embedder, nil, logger)
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, pipeline: pipeline, closer: closer}, nil
}
