package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"RewardPilot/internal/auth"
	"RewardPilot/internal/config"
	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/httpclient"
	"RewardPilot/internal/identity"
	"RewardPilot/internal/ledger"
	"RewardPilot/internal/observability/alerting"
	"RewardPilot/internal/observability/metrics"
	"RewardPilot/internal/platform"
	"RewardPilot/internal/proxy"
	"RewardPilot/internal/storage/mysql"
	"RewardPilot/internal/storage/redis"
	"RewardPilot/internal/workflow"
	"RewardPilot/pkg/logger"
)

type app struct {
	runner *workflow.Runner
	ledger ledger.Sink
}

func (a *app) Close() error {
	if a.ledger == nil {
		return nil
	}
	return a.ledger.Close()
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	exec := httpclient.New(httpclient.Config{
		DefaultHeaders:    httpclient.DefaultHeaders(cfg.Platform.Origin, cfg.Platform.Referer, cfg.Platform.UserAgent),
		Backoff:           newBackoff(cfg.Retry),
		Timeout:           cfg.Platform.Timeout(),
		RetryClientErrors: cfg.Retry.RetryClientErrors,
	}, httpclient.WithRecorder(metrics.Default))

	api, err := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.Referer, exec)
	if err != nil {
		return nil, err
	}
	authn, err := auth.NewAuthenticator(api, auth.Config{
		Message: cfg.Platform.LoginMessage,
		Referral: auth.FileReferral{
			Path:     cfg.Inputs.ReferralFile,
			Fallback: cfg.Platform.DefaultReferralCode,
		},
	})
	if err != nil {
		return nil, err
	}
	generator, err := identity.NewGenerator(cfg.Identity.Scheme)
	if err != nil {
		return nil, err
	}

	proxies, err := proxy.LoadList(cfg.Inputs.ProxyFile)
	if err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		logger.L().Info("no proxies configured, using direct connections", slog.String("file", cfg.Inputs.ProxyFile))
	} else {
		logger.L().Info("proxies loaded", slog.Int("count", len(proxies)))
	}

	sink, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := workflow.NewOrchestrator(workflow.Dependencies{
		Identities: generator,
		Ledger:     sink,
		Auth:       authn,
		Platform:   api,
		Router:     proxy.NewRouter(proxies),
	},
		workflow.WithTaskPacing(cfg.Workflow.TaskPacing()),
		workflow.WithRecorder(metrics.Default),
		workflow.WithAlerts(newAlerts(cfg.Alerting)),
	)
	if err != nil {
		sink.Close()
		return nil, err
	}

	queues, err := queueFactory(cfg.Queue)
	if err != nil {
		sink.Close()
		return nil, err
	}
	runner := workflow.NewRunner(orchestrator,
		workflow.WithWorkers(cfg.Workflow.Workers),
		workflow.WithQueueFactory(queues),
	)
	return &app{runner: runner, ledger: sink}, nil
}

func newAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	return alerting.NewFanout(xerrors.Severity(cfg.MinSeverity), notifiers...)
}

func newBackoff(cfg config.RetryConfig) httpclient.Backoff {
	if cfg.Strategy == "exponential" {
		return httpclient.ExponentialBackoff{
			Attempts: cfg.MaxAttempts,
			Initial:  cfg.RetryDelay(),
			Max:      cfg.MaxDelay(),
			Jitter:   cfg.Jitter(),
		}
	}
	return httpclient.FixedBackoff{
		Attempts: cfg.MaxAttempts,
		Interval: cfg.RetryDelay(),
		Jitter:   cfg.Jitter(),
	}
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Sink, error) {
	switch cfg.Driver {
	case "file", "":
		sink, err := ledger.NewFileSink(cfg.Path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "mysql":
		repo, err := mysql.NewLedgerRepository(ctx, mysql.Config{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "redis":
		store, err := redis.NewLedgerStore(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Key)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", mysql.ErrUnsupportedDriver, cfg.Driver)
	}
}

func queueFactory(cfg config.QueueConfig) (workflow.QueueFactory, error) {
	switch cfg.Driver {
	case "memory", "":
		return workflow.MemoryQueueFactory(cfg.Size), nil
	case "redis":
		return workflow.RedisQueueFactory(workflow.RedisQueueConfig{
			Redis: redis.Config{
				Address:  cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
			Queue:     cfg.Redis.Key,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		}), nil
	case "rabbitmq":
		return workflow.RabbitMQQueueFactory(workflow.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
		}), nil
	default:
		return nil, errors.New("未知的队列驱动: " + cfg.Driver)
	}
}
