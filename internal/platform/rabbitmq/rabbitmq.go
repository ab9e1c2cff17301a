package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/pkg/retry"
)

// New dials the broker, retrying while it starts up, and proves it answers
// on a channel.
func New(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	logger = logging.OrNop(logger)
	conn, err := retry.Do(ctx, retry.Policy{Attempts: 5, Delay: time.Second, Exponential: true},
		func(context.Context, int) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{
				Heartbeat: 10 * time.Second,
				Locale:    "en_US",
				Properties: amqp.Table{
					"connection_name": "pdfquiz",
				},
			})
		},
		func(attempt int, err error, next time.Duration) {
			logger.Warn("rabbitmq not ready, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", next), zap.Error(err))
		})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := conn.Channel()
		if err != nil {
			done <- err
			return
		}
		done <- ch.Close()
	}()

	select {
	case <-checkCtx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
		}
		return conn, nil
	}
}

// DeclareQueue declares a durable, non-exclusive queue.
func DeclareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
