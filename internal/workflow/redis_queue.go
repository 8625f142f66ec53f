package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/storage/redis"
)

// RedisQueueConfig configures the redis job queue.
type RedisQueueConfig struct {
	Redis     redis.Config
	Queue     string
	BlockWait time.Duration
}

// RedisQueue is a redis list: LPUSH to publish, BRPOP to consume, so jobs
// come out first in first out.
type RedisQueue struct {
	client *goredis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue connects to redis.
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "open redis queue")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "rewardpilot:jobs"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}, nil
}

// RedisQueueFactory creates a run-scoped list per run.
func RedisQueueFactory(cfg RedisQueueConfig) QueueFactory {
	return func(ctx context.Context, runID string) (Queue, error) {
		scoped := cfg
		scoped.Queue = QueueName(cfg.Queue, runID)
		return NewRedisQueue(ctx, scoped)
	}
}

func (q *RedisQueue) Publish(ctx context.Context, index int) error {
	if err := q.client.LPush(ctx, q.queue, encodeIndex(index)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "redis publish")
	}
	return nil
}

// Consume pops jobs until ctx is done or redis fails.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for workerCtx.Err() == nil {
				values, err := q.client.BRPop(workerCtx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, goredis.Nil) {
						continue
					}
					if workerCtx.Err() != nil || errors.Is(err, goredis.ErrClosed) {
						return
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "redis consume")
					return
				}
				if len(values) != 2 {
					continue
				}
				index, err := decodeIndex(values[1])
				if err != nil {
					continue
				}
				handler(workerCtx, index)
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case err := <-errCh:
		result = fmt.Errorf("redis queue %s: %w", q.queue, err)
	}
	cancel()
	wg.Wait()
	return result
}

// Close deletes the run's list and closes the client.
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	_ = q.client.Del(context.Background(), q.queue).Err()
	return q.client.Close()
}
