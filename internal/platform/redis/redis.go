package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/pkg/retry"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New connects and waits for the server to answer PING, retrying while it
// starts up.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	logger = logging.OrNop(logger)
	_, err := retry.Do(ctx, retry.Policy{Attempts: 5, Delay: time.Second, Exponential: true},
		func(ctx context.Context, _ int) (struct{}, error) {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return struct{}{}, client.Ping(pingCtx).Err()
		},
		func(attempt int, err error, next time.Duration) {
			logger.Warn("redis not ready, retrying", zap.String("addr", opts.Addr), zap.Int("attempt", attempt), zap.Duration("backoff", next), zap.Error(err))
		})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}
