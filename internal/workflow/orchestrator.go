// Package workflow drives generated identities through the platform's fixed
// sequence of calls and runs batches of identities over a job queue.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"RewardPilot/internal/auth"
	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/httpclient"
	"RewardPilot/internal/identity"
	"RewardPilot/internal/ledger"
	"RewardPilot/internal/observability/alerting"
	"RewardPilot/internal/platform"
	"RewardPilot/internal/proxy"
	"RewardPilot/pkg/logger"
)

// DefaultTaskPacing separates consecutive task completions.
const DefaultTaskPacing = time.Second

// IdentitySource generates identities.
type IdentitySource interface {
	Generate() (*identity.Identity, error)
}

// Authenticator turns an identity into a session.
type Authenticator interface {
	Login(ctx context.Context, id *identity.Identity, rt http.RoundTripper) (*auth.Session, error)
}

// PlatformAPI is the set of authorized platform calls.
type PlatformAPI interface {
	Profile(ctx context.Context, token string, rt http.RoundTripper) (platform.Envelope, error)
	Dashboard(ctx context.Context, token string, rt http.RoundTripper) (platform.Envelope, error)
	Stats(ctx context.Context, token string, rt http.RoundTripper) (platform.Envelope, error)
	DailyCheckIn(ctx context.Context, token string, rt http.RoundTripper) (platform.Envelope, error)
	Tasks(ctx context.Context, token string, rt http.RoundTripper) ([]platform.Task, error)
	CompleteTask(ctx context.Context, token, taskID string, rt http.RoundTripper) (platform.CompleteResult, error)
}

// TransportRouter maps identity indices to transports.
type TransportRouter interface {
	TransportFor(index int) (http.RoundTripper, proxy.Descriptor)
}

// Recorder receives per-identity and per-task outcomes.
type Recorder interface {
	ObserveIdentity(outcome string)
	ObserveTask(completed bool)
}

// Dependencies are the collaborators an Orchestrator needs.
type Dependencies struct {
	Identities IdentitySource
	Ledger     ledger.Sink
	Auth       Authenticator
	Platform   PlatformAPI
	Router     TransportRouter
}

// Result is the outcome of one identity's pipeline.
type Result struct {
	Index      int
	IdentityID string
	PublicKey  string
	Proxy      string
	Completed  int
	Total      int
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether the pipeline reached the task loop.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Outcome labels the result for metrics and audit records.
func (r Result) Outcome() string {
	switch {
	case r.Err == nil:
		return "succeeded"
	case xerrors.CodeOf(r.Err) == xerrors.CodeCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

// Orchestrator runs the per-identity pipeline. It is safe for concurrent use
// as long as its dependencies are.
type Orchestrator struct {
	deps     Dependencies
	pacing   time.Duration
	sleep    httpclient.Sleeper
	logger   *slog.Logger
	audit    *slog.Logger
	recorder Recorder
	alerts   alerting.Dispatcher
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithTaskPacing sets the delay between task completions.
func WithTaskPacing(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.pacing = d
		}
	}
}

// WithSleeper replaces the pacing wait.
func WithSleeper(s httpclient.Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAuditLogger overrides the audit logger.
func WithAuditLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.audit = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithAlerts dispatches an event for every aborted identity.
func WithAlerts(d alerting.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.alerts = d
	}
}

// NewOrchestrator validates deps. A nil Router means direct connections.
func NewOrchestrator(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Identities == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "identity source is required")
	case deps.Ledger == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "ledger is required")
	case deps.Auth == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "authenticator is required")
	case deps.Platform == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "platform api is required")
	}
	if deps.Router == nil {
		deps.Router = proxy.NewRouter(nil)
	}
	o := &Orchestrator{
		deps:   deps,
		pacing: DefaultTaskPacing,
		sleep:  httpclient.SleepContext,
		logger: logger.Named("workflow"),
		audit:  logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// Process runs the full pipeline for the identity at index. Failures before
// the task loop abort this identity only and are reported in Result.Err; task
// failures are counted and the loop moves on. The identity's secret is wiped
// before Process returns.
func (o *Orchestrator) Process(ctx context.Context, index int) Result {
	start := time.Now()
	result := Result{Index: index}
	log := o.logger.With(slog.Int("index", index))

	result.Err = o.process(ctx, index, &result, log)
	result.Duration = time.Since(start)

	if o.recorder != nil {
		o.recorder.ObserveIdentity(result.Outcome())
	}
	attrs := []any{
		slog.Int("index", index),
		slog.String("identity_id", result.IdentityID),
		slog.String("wallet", result.PublicKey),
		slog.String("proxy", result.Proxy),
		slog.String("outcome", result.Outcome()),
		slog.Int("tasks_completed", result.Completed),
		slog.Int("tasks_total", result.Total),
		slog.Duration("duration", result.Duration),
	}
	if result.Err != nil {
		attrs = append(attrs, slog.String("error_code", string(xerrors.CodeOf(result.Err))), slog.Any("error", result.Err))
		log.Error("identity pipeline aborted", attrs...)
		o.alert(ctx, result)
	} else {
		log.Info("identity pipeline finished", attrs...)
	}
	o.audit.Info("identity processed", attrs...)
	return result
}

func (o *Orchestrator) process(ctx context.Context, index int, result *Result, log *slog.Logger) error {
	if err := checkpoint(ctx, "generate"); err != nil {
		return err
	}
	id, err := o.deps.Identities.Generate()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "generate identity")
	}
	defer id.Wipe()
	result.IdentityID = id.ID
	result.PublicKey = id.PublicKey
	log = log.With(slog.String("wallet", id.PublicKey))
	log.Info("identity generated", slog.String("scheme", id.Scheme()))

	record, err := ledger.NewRecord(id)
	if err != nil {
		return err
	}
	if err := o.deps.Ledger.Append(ctx, record); err != nil {
		return err
	}

	transport, descriptor := o.deps.Router.TransportFor(index)
	defer closeIdle(transport)
	result.Proxy = descriptor.Redacted()
	log.Info("using network route", slog.String("proxy", result.Proxy))

	if err := checkpoint(ctx, "login"); err != nil {
		return err
	}
	session, err := o.deps.Auth.Login(ctx, id, transport)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Info("login succeeded")

	steps := []struct {
		name string
		call func(context.Context, string, http.RoundTripper) (platform.Envelope, error)
	}{
		{"profile", o.deps.Platform.Profile},
		{"dashboard", o.deps.Platform.Dashboard},
		{"dashboard stats", o.deps.Platform.Stats},
		{"daily check-in", o.deps.Platform.DailyCheckIn},
	}
	for _, step := range steps {
		if err := checkpoint(ctx, step.name); err != nil {
			return err
		}
		if _, err := step.call(ctx, session.AccessToken, transport); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		log.Info("step completed", slog.String("step", step.name))
	}

	if err := checkpoint(ctx, "task list"); err != nil {
		return err
	}
	tasks, err := o.deps.Platform.Tasks(ctx, session.AccessToken, transport)
	if err != nil {
		return fmt.Errorf("task list: %w", err)
	}
	result.Total = len(tasks)
	log.Info("tasks fetched", slog.Int("count", len(tasks)))

	for i, task := range tasks {
		if i > 0 {
			if err := o.sleep(ctx, o.pacing); err != nil {
				return xerrors.Wrap(xerrors.CodeCanceled, err, "task loop canceled")
			}
		}
		if err := checkpoint(ctx, "task completion"); err != nil {
			return err
		}
		if o.completeTask(ctx, session.AccessToken, task, transport, log) {
			result.Completed++
		}
	}
	return nil
}

func (o *Orchestrator) completeTask(ctx context.Context, token string, task platform.Task, rt http.RoundTripper, log *slog.Logger) bool {
	taskLog := log.With(slog.String("task_id", task.TaskID.String()), slog.String("title", task.Title))
	res, err := o.deps.Platform.CompleteTask(ctx, token, task.TaskID.String(), rt)
	completed := err == nil && res.Completed()
	if o.recorder != nil {
		o.recorder.ObserveTask(completed)
	}
	switch {
	case err != nil:
		taskLog.Warn("task completion failed", slog.Any("error", err))
	case !completed:
		taskLog.Warn("task completion rejected", slog.Int("status_code", res.StatusCode), slog.String("message", res.Message))
	default:
		taskLog.Info("task completed")
	}
	return completed
}

func (o *Orchestrator) alert(ctx context.Context, result Result) {
	if o.alerts == nil {
		return
	}
	if err := o.alerts.Notify(context.WithoutCancel(ctx), alerting.EventFromError(result.Index, result.PublicKey, result.Err)); err != nil {
		o.logger.Warn("alert dispatch failed", slog.Any("error", err))
	}
}

func checkpoint(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeCanceled, err, "canceled before "+step)
	}
	return nil
}

func closeIdle(rt http.RoundTripper) {
	if closer, ok := rt.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}
