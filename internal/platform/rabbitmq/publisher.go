package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"pdfquiz/internal/model"
)

// Publisher writes persistent JSON messages to durable queues. A channel is
// opened per publish; publishing is infrequent next to ingestion work.
type Publisher struct {
	conn *amqp.Connection
}

func NewPublisher(conn *amqp.Connection) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) PublishJSON(ctx context.Context, queue, messageType string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload failed: %w", messageType, err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, queue); err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         messageType,
		Timestamp:    time.Now(),
		Body:         payload,
	}); err != nil {
		return fmt.Errorf("publish %s failed: %w", messageType, err)
	}
	return nil
}

// JobQueue enqueues asynchronous ingestion jobs.
type JobQueue struct {
	pub   *Publisher
	queue string
}

func NewJobQueue(pub *Publisher, queue string) *JobQueue {
	return &JobQueue{pub: pub, queue: queue}
}

func (q *JobQueue) Enqueue(ctx context.Context, job model.IngestJob) error {
	return q.pub.PublishJSON(ctx, q.queue, "document.ingest", job)
}

// ReadyNotifier announces documents that finished ingestion.
type ReadyNotifier struct {
	pub   *Publisher
	queue string
}

func NewReadyNotifier(pub *Publisher, queue string) *ReadyNotifier {
	return &ReadyNotifier{pub: pub, queue: queue}
}

func (n *ReadyNotifier) DocumentReady(ctx context.Context, event model.DocumentReadyEvent) error {
	return n.pub.PublishJSON(ctx, n.queue, "document.ready", event)
}
