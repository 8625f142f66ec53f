package workflow

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "RewardPilot/internal/errors"
)

// RabbitMQConfig configures the rabbitmq job queue. A zero Prefetch lets as
// many jobs be in flight as there are workers.
type RabbitMQConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// RabbitMQQueue declares one auto-delete queue per run and consumes it with
// manual acks.
type RabbitMQQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
}

// NewRabbitMQQueue dials the broker and declares the queue.
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "rabbitmq url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "rewardpilot.jobs"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "open rabbitmq channel")
	}
	if _, err := ch.QueueDeclare(queue, false, true, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "declare rabbitmq queue")
	}
	return &RabbitMQQueue{conn: conn, ch: ch, queue: queue, prefetch: cfg.Prefetch}, nil
}

// RabbitMQQueueFactory creates a run-scoped queue per run.
func RabbitMQQueueFactory(cfg RabbitMQConfig) QueueFactory {
	return func(_ context.Context, runID string) (Queue, error) {
		scoped := cfg
		scoped.Queue = QueueName(cfg.Queue, runID)
		return NewRabbitMQQueue(scoped)
	}
}

func (q *RabbitMQQueue) Publish(ctx context.Context, index int) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "rabbitmq queue not initialised")
	}
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(encodeIndex(index)),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "rabbitmq publish")
	}
	return nil
}

// Consume sets the channel prefetch and runs workerCount handlers until ctx
// is done. Every delivered job is acked once handled; malformed payloads are
// rejected.
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "rabbitmq queue not initialised")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if err := q.ch.Qos(prefetchFor(q.prefetch, workerCount), 0, false); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "set rabbitmq qos")
	}
	msgs, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("subscribe rabbitmq queue: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					index, err := decodeIndex(string(msg.Body))
					if err != nil {
						_ = msg.Reject(false)
						continue
					}
					handler(ctx, index)
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close closes the channel and connection; the auto-delete queue goes with
// them.
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// prefetchFor returns the unacked-message limit. Unset means one per worker so
// no worker idles behind another's unacked job.
func prefetchFor(configured, workers int) int {
	if configured > 0 {
		return configured
	}
	if workers > 0 {
		return workers
	}
	return 1
}
