package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/pkg/retry"
)

var (
	ErrEmbeddingServiceUnavailable = errors.New("embedding service unavailable")
	ErrEmptyEmbeddingInput         = errors.New("embedding input is empty")
	ErrInvalidEmbedding            = errors.New("invalid embedding response")
)

// EmbeddingConfig holds API settings for an OpenAI-compatible embedding model.
type EmbeddingConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	BatchSize         int
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

// EmbeddingClient batches, rate limits and retries embedding requests, and
// checks every vector against the configured dimension.
type EmbeddingClient struct {
	api     *OpenAICompatibleClient
	cfg     EmbeddingConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewEmbeddingClient(api *OpenAICompatibleClient, cfg EmbeddingConfig, logger *zap.Logger) *EmbeddingClient {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &EmbeddingClient{
		api:     api,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrNop(logger),
	}
}

func (c *EmbeddingClient) Dimension() int {
	return c.cfg.Dimension
}

// Embed returns one vector per text, in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyEmbeddingInput
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is blank", ErrEmptyEmbeddingInput, i)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	policy := retry.Policy{Attempts: c.cfg.MaxAttempts, Delay: c.cfg.RetryDelay}

	vectors, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) ([][]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}
		vectors, err := c.api.EmbedBatch(ctx, c.cfg.BaseURL, c.cfg.APIKey, c.cfg.Model, batch)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Temporary() {
				embeddingRequests.WithLabelValues("rejected").Inc()
				return nil, retry.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, retry.Permanent(err)
			}
			embeddingRequests.WithLabelValues("error").Inc()
			return nil, err
		}
		if err := c.validate(vectors, len(batch)); err != nil {
			embeddingRequests.WithLabelValues("invalid").Inc()
			return nil, retry.Permanent(err)
		}
		embeddingRequests.WithLabelValues("ok").Inc()
		return vectors, nil
	}, func(attempt int, err error, next time.Duration) {
		c.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("batch_size", len(batch)),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})
	if err == nil {
		return vectors, nil
	}
	if errors.Is(err, ErrInvalidEmbedding) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingServiceUnavailable, err)
}

func (c *EmbeddingClient) validate(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrInvalidEmbedding, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", ErrInvalidEmbedding, i)
		}
		if c.cfg.Dimension > 0 && len(v) != c.cfg.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrInvalidEmbedding, i, len(v), c.cfg.Dimension)
		}
	}
	return nil
}
