package workflow

import (
	"context"
	"strconv"
	"strings"

	xerrors "RewardPilot/internal/errors"
)

// Handler processes one identity index. Outcomes are recorded by the handler
// itself; a handled job is never redelivered.
type Handler func(ctx context.Context, index int)

// Producer publishes identity indices.
type Producer interface {
	Publish(ctx context.Context, index int) error
	Close() error
}

// Consumer feeds indices to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends of a job queue.
type Queue interface {
	Producer
	Consumer
}

// QueueFactory creates the queue for one run. runID keeps concurrent runs apart.
type QueueFactory func(ctx context.Context, runID string) (Queue, error)

func encodeIndex(index int) string {
	return strconv.Itoa(index)
}

func decodeIndex(payload string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || index < 0 {
		return 0, xerrors.New(xerrors.CodeQueueFailure, "malformed job payload",
			xerrors.WithMetadata("payload", payload))
	}
	return index, nil
}

// QueueName scopes base to a run.
func QueueName(base, runID string) string {
	if runID == "" {
		return base
	}
	return base + ":" + runID
}
