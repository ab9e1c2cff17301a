package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pdfquiz/internal/ai"
	appsvc "pdfquiz/internal/app"
	"pdfquiz/internal/cache"
	"pdfquiz/internal/config"
	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	mysqlClient "pdfquiz/internal/platform/mysql"
	rabbitmqClient "pdfquiz/internal/platform/rabbitmq"
	redisClient "pdfquiz/internal/platform/redis"
	"pdfquiz/internal/rag"
	"pdfquiz/internal/repository"
	"pdfquiz/internal/vectorstore"
	"pdfquiz/internal/worker"
)

type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	VectorStore  vectorstore.Store
	Pipeline     *rag.Pipeline
	Documents    *appsvc.DocumentService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time

	closeVectorStore func() error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}
	logger = logger.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	var err error
	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), logger, &model.DocumentRecord{})
	if err != nil {
		return err
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		return err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, logger)
	if err != nil {
		return err
	}

	a.VectorStore, a.closeVectorStore, err = NewVectorStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open vector store failed: %w", err)
	}

	llm := NewLLMClient()
	publisher := rabbitmqClient.NewPublisher(a.MQConn)
	a.Pipeline, err = NewPipeline(cfg, a.VectorStore, NewEmbeddingClient(cfg, llm, logger),
		rabbitmqClient.NewReadyNotifier(publisher, cfg.RabbitMQ.ReadyQueue), logger)
	if err != nil {
		return fmt.Errorf("build pipeline failed: %w", err)
	}

	a.Documents = appsvc.NewDocumentService(
		a.Pipeline,
		repository.NewDocumentRepository(a.MySQL),
		cache.NewContextCache(a.Redis, time.Duration(cfg.Retrieval.CacheTTLSeconds)*time.Second),
		rabbitmqClient.NewJobQueue(publisher, cfg.RabbitMQ.IngestQueue),
		llm,
		appsvc.DocumentServiceConfig{
			Defaults:    IngestDefaults(cfg),
			DefaultTopK: cfg.Retrieval.DefaultTopK,
			Chat: ai.ChatConfig{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Model:   cfg.LLM.Model,
			},
		},
		logger,
	)

	a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Documents, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.WorkerPrefetch, logger)
	if err := a.IngestWorker.Start(ctx); err != nil {
		return fmt.Errorf("start ingest worker failed: %w", err)
	}
	return nil
}

// HealthChecks probes every external dependency.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := a.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(context.Context) error {
			if a.MQConn == nil || a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"vectorstore": func(ctx context.Context) error {
			if p, ok := a.VectorStore.(interface{ Ping(context.Context) error }); ok {
				return p.Ping(ctx)
			}
			return nil
		},
	}
}

func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.closeVectorStore != nil {
		errs = append(errs, a.closeVectorStore())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.MQConn != nil {
		errs = append(errs, a.MQConn.Close())
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
