package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"RewardPilot/pkg/logger"
)

// Config 描述了 RewardPilot 在启动阶段需要加载的核心配置。
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Retry    RetryConfig    `yaml:"retry"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Identity IdentityConfig `yaml:"identity"`
	Inputs   InputsConfig   `yaml:"inputs"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Queue    QueueConfig    `yaml:"queue"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerting AlertingConfig `yaml:"alerting"`
	Log      logger.Config  `yaml:"log"`
}

// PlatformConfig 描述远端奖励平台的地址与浏览器会话头。
type PlatformConfig struct {
	BaseURL             string `yaml:"base_url"`
	Origin              string `yaml:"origin"`
	Referer             string `yaml:"referer"`
	UserAgent           string `yaml:"user_agent"`
	LoginMessage        string `yaml:"login_message"`
	DefaultReferralCode string `yaml:"default_referral_code"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
}

// RetryConfig 控制单次逻辑请求的重试策略。
type RetryConfig struct {
	Strategy          string `yaml:"strategy"`
	MaxAttempts       int    `yaml:"max_attempts"`
	DelayMillis       int    `yaml:"delay_ms"`
	MaxDelayMillis    int    `yaml:"max_delay_ms"`
	JitterMillis      int    `yaml:"jitter_ms"`
	RetryClientErrors bool   `yaml:"retry_client_errors"`
}

// WorkflowConfig 控制每个身份的流水线节奏与并发度。
type WorkflowConfig struct {
	TaskPacingMillis int `yaml:"task_pacing_ms"`
	Workers          int `yaml:"workers"`
}

// IdentityConfig 选择钱包身份的签名方案。
type IdentityConfig struct {
	Scheme string `yaml:"scheme"`
}

// InputsConfig 描述外部输入文件的位置。
type InputsConfig struct {
	ProxyFile    string `yaml:"proxy_file"`
	ReferralFile string `yaml:"referral_file"`
}

// LedgerConfig 描述凭据账本的落地方式。
type LedgerConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	MySQL  MySQLConfig `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
}

// MySQLConfig 描述 MySQL 连接参数。
type MySQLConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig 描述 Redis 连接参数，账本与队列共用。
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Key       string `yaml:"key"`
	BlockWait int    `yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// QueueConfig 描述身份任务的分发队列。
type QueueConfig struct {
	Driver   string         `yaml:"driver"`
	Size     int            `yaml:"size"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// MetricsConfig 控制运行结束后指标快照的输出位置。
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// AlertingConfig 控制身份流水线中止时的告警。
type AlertingConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	MinSeverity string `yaml:"min_severity"`
}

const (
	DefaultBaseURL      = "https://api.flow3.tech/api/v1"
	DefaultOrigin       = "https://dashboard.flow3.tech"
	DefaultReferer      = "https://dashboard.flow3.tech/"
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"
	DefaultLoginMessage = "Please sign this message to connect your wallet to Flow 3 and verifying your ownership only."
	DefaultReferralCode = "aHNzHBboY"
)

// Load 负责解析指定路径的 YAML 配置文件。文件不存在时使用默认值。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return nil, fmt.Errorf("解析配置失败: %w", err)
			}
			baseDir = filepath.Dir(path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv() {
	c.Platform.BaseURL = getEnv("REWARDPILOT_BASE_URL", c.Platform.BaseURL)
	c.Identity.Scheme = getEnv("REWARDPILOT_IDENTITY_SCHEME", c.Identity.Scheme)
	c.Inputs.ProxyFile = getEnv("REWARDPILOT_PROXY_FILE", c.Inputs.ProxyFile)
	c.Inputs.ReferralFile = getEnv("REWARDPILOT_REFERRAL_FILE", c.Inputs.ReferralFile)
	c.Ledger.Driver = getEnv("REWARDPILOT_LEDGER_DRIVER", c.Ledger.Driver)
	c.Ledger.Path = getEnv("REWARDPILOT_LEDGER_PATH", c.Ledger.Path)
	c.Ledger.MySQL.DSN = getEnv("REWARDPILOT_MYSQL_DSN", c.Ledger.MySQL.DSN)
	c.Queue.Driver = getEnv("REWARDPILOT_QUEUE_DRIVER", c.Queue.Driver)
	c.Log.Level = getEnv("REWARDPILOT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("REWARDPILOT_LOG_FORMAT", c.Log.Format)
	c.Workflow.Workers = getEnvInt("REWARDPILOT_WORKERS", c.Workflow.Workers)
	c.Alerting.WebhookURL = getEnv("REWARDPILOT_ALERT_WEBHOOK", c.Alerting.WebhookURL)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = DefaultBaseURL
	}
	c.Platform.BaseURL = strings.TrimRight(c.Platform.BaseURL, "/")
	if c.Platform.Origin == "" {
		c.Platform.Origin = DefaultOrigin
	}
	if c.Platform.Referer == "" {
		c.Platform.Referer = DefaultReferer
	}
	if c.Platform.UserAgent == "" {
		c.Platform.UserAgent = DefaultUserAgent
	}
	if c.Platform.LoginMessage == "" {
		c.Platform.LoginMessage = DefaultLoginMessage
	}
	if c.Platform.DefaultReferralCode == "" {
		c.Platform.DefaultReferralCode = DefaultReferralCode
	}
	if c.Platform.TimeoutSeconds <= 0 {
		c.Platform.TimeoutSeconds = 30
	}

	if c.Retry.Strategy == "" {
		c.Retry.Strategy = "fixed"
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 10
	}
	if c.Retry.DelayMillis <= 0 {
		c.Retry.DelayMillis = 2000
	}
	if c.Retry.MaxDelayMillis <= 0 {
		c.Retry.MaxDelayMillis = 30000
	}

	if c.Workflow.TaskPacingMillis <= 0 {
		c.Workflow.TaskPacingMillis = 1000
	}
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = 1
	}

	if c.Identity.Scheme == "" {
		c.Identity.Scheme = "solana"
	}

	c.Inputs.ProxyFile = resolve(baseDir, c.Inputs.ProxyFile, "proxies.txt")
	c.Inputs.ReferralFile = resolve(baseDir, c.Inputs.ReferralFile, "code.txt")

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "file"
	}
	c.Ledger.Path = resolve(baseDir, c.Ledger.Path, "accounts.txt")
	if c.Ledger.Redis.Key == "" {
		c.Ledger.Redis.Key = "rewardpilot:ledger"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 1024
	}
	if c.Queue.Redis.Key == "" {
		c.Queue.Redis.Key = "rewardpilot:jobs"
	}
	if c.Queue.Redis.BlockWait <= 0 {
		c.Queue.Redis.BlockWait = 5
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "rewardpilot.jobs"
	}
	if c.Alerting.MinSeverity == "" {
		c.Alerting.MinSeverity = "critical"
	}
	if c.Metrics.Path != "" {
		c.Metrics.Path = resolve(baseDir, c.Metrics.Path, "")
	}
}

// Validate 检查驱动名称等枚举字段。
func (c *Config) Validate() error {
	switch c.Identity.Scheme {
	case "solana", "evm":
	default:
		return fmt.Errorf("未知的身份方案: %s", c.Identity.Scheme)
	}
	switch c.Retry.Strategy {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("未知的重试策略: %s", c.Retry.Strategy)
	}
	switch c.Ledger.Driver {
	case "file", "mysql", "redis":
	default:
		return fmt.Errorf("未知的账本驱动: %s", c.Ledger.Driver)
	}
	switch c.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver)
	}
	switch c.Alerting.MinSeverity {
	case "info", "warning", "critical":
	default:
		return fmt.Errorf("未知的告警级别: %s", c.Alerting.MinSeverity)
	}
	return nil
}

// RetryDelay 返回两次重试之间的基础间隔。
func (c RetryConfig) RetryDelay() time.Duration {
	return time.Duration(c.DelayMillis) * time.Millisecond
}

// Jitter 返回附加的随机抖动上限。
func (c RetryConfig) Jitter() time.Duration {
	return time.Duration(c.JitterMillis) * time.Millisecond
}

// MaxDelay 返回指数退避的上限。
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMillis) * time.Millisecond
}

// TaskPacing 返回两次任务完成调用之间的间隔。
func (c WorkflowConfig) TaskPacing() time.Duration {
	return time.Duration(c.TaskPacingMillis) * time.Millisecond
}

// Timeout 返回单次 HTTP 尝试的超时时间。
func (c PlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// resolve 将配置文件中的相对路径解析到配置文件所在目录；未配置时使用
// fallback，相对于当前工作目录。
func resolve(baseDir, value, fallback string) string {
	if value == "" {
		return fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
