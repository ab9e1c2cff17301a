package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	"pdfquiz/internal/platform/rabbitmq"
)

// Processor runs one ingestion job. A non-nil record alongside an error means
// the failure was recorded on the document.
type Processor interface {
	Process(ctx context.Context, job model.IngestJob) (*model.DocumentRecord, error)
}

type outcome int

const (
	ack outcome = iota
	reject
	requeue
)

type IngestWorker struct {
	conn      *amqp.Connection
	processor Processor
	queueName string
	prefetch  int
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor Processor, queueName string, prefetch int, logger *zap.Logger) *IngestWorker {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		prefetch:  prefetch,
		logger:    logging.OrNop(logger).With(zap.String("queue", queueName)),
	}
}

// Start consumes the ingest queue with prefetch concurrent handlers.
func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.prefetch; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			w.consume(workerCtx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.logger.Info("ingest worker started", zap.Int("prefetch", w.prefetch))
	return nil
}

func (w *IngestWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			switch w.handle(ctx, d.Body, d.Redelivered) {
			case ack:
				_ = d.Ack(false)
			case reject:
				_ = d.Nack(false, false)
			case requeue:
				_ = d.Nack(false, true)
			}
		}
	}
}

func (w *IngestWorker) handle(ctx context.Context, body []byte, redelivered bool) outcome {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.Error("worker decode job failed", zap.Error(err))
		return reject
	}
	if job.DocumentID == "" || len(job.Content) == 0 {
		w.logger.Error("worker received incomplete job", zap.String("document_id", job.DocumentID))
		return reject
	}

	log := w.logger.With(zap.String("document_id", job.DocumentID), zap.String("chat_id", job.ChatID))
	record, err := w.processor.Process(ctx, job)
	switch {
	case err == nil:
		log.Info("ingest job done", zap.Int("chunks", record.ChunkCount))
		return ack
	case record != nil:
		log.Warn("ingest job failed", zap.String("reason", record.FailureReason), zap.Error(err))
		return ack
	case ctx.Err() != nil || !redelivered:
		log.Warn("ingest job interrupted, requeueing", zap.Error(err))
		return requeue
	default:
		log.Error("ingest job failed twice, dropping", zap.Error(err))
		return reject
	}
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
