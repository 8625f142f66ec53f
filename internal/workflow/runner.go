package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/pkg/logger"
)

// Processor handles one identity index.
type Processor interface {
	Process(ctx context.Context, index int) Result
}

// Runner fans identity indices out over a job queue to a fixed set of
// workers. With one worker, identities run strictly in index order.
type Runner struct {
	processor Processor
	queues    QueueFactory
	workers   int
	logger    *slog.Logger
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets the number of concurrent identity pipelines.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithQueueFactory selects the job queue backend.
func WithQueueFactory(f QueueFactory) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.queues = f
		}
	}
}

// WithRunnerLogger overrides the runner logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner builds a runner. The default queue is in-memory.
func NewRunner(processor Processor, opts ...RunnerOption) *Runner {
	r := &Runner{
		processor: processor,
		queues:    MemoryQueueFactory(1024),
		workers:   1,
		logger:    logger.Named("runner"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run processes count identities and returns the aggregated stats. An invalid
// count fails before any identity is generated. Cancellation stops the run
// after in-flight identities return; their results are kept.
func (r *Runner) Run(ctx context.Context, count int) (RunStats, error) {
	if count <= 0 {
		return RunStats{}, xerrors.New(xerrors.CodeValidation, "run count must be greater than zero")
	}
	if r.processor == nil {
		return RunStats{}, xerrors.New(xerrors.CodeInitializationFailure, "processor is required")
	}

	start := time.Now()
	runID := uuid.NewString()
	collector := &statsCollector{stats: RunStats{RunID: runID, Requested: count}}
	log := r.logger.With(slog.String("run_id", runID))

	queue, err := r.queues(ctx, runID)
	if err != nil {
		return collector.snapshot(), err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Warn("close job queue", slog.Any("error", err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	handler := func(ctx context.Context, index int) {
		result := r.processor.Process(ctx, index)
		if collector.add(result) >= count {
			once.Do(cancel)
		}
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- queue.Consume(runCtx, r.workers, handler)
	}()

	log.Info("run started", slog.Int("count", count), slog.Int("workers", r.workers))
	for index := 0; index < count; index++ {
		if err := queue.Publish(runCtx, index); err != nil {
			if runCtx.Err() != nil {
				break
			}
			cancel()
			<-consumeErr
			return collector.snapshot(), xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish job")
		}
	}

	err = <-consumeErr
	stats := collector.snapshot()
	stats.Duration = time.Since(start)
	log.Info("run finished",
		slog.Int("processed", stats.Processed),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("tasks_completed", stats.TasksCompleted),
		slog.Int("tasks_total", stats.TasksTotal),
		slog.Duration("duration", stats.Duration))

	if stats.Processed >= count {
		return stats, nil
	}
	if ctx.Err() != nil {
		return stats, xerrors.Wrap(xerrors.CodeCanceled, ctx.Err(), "run canceled")
	}
	if err != nil {
		return stats, xerrors.Wrap(xerrors.CodeQueueFailure, err, "consume jobs")
	}
	return stats, nil
}
