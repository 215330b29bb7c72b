package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Janitor    JanitorConfig    `mapstructure:"janitor"`
	Ops        OpsConfig        `mapstructure:"ops"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// KafkaConfig drives the optional wake-up nudge consumer. The durable
// queue stays the sole source of truth; nudges only cut polling latency.
type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// CaptureConfig lists the watched entities: table name -> singular
// entity name used in event types ("contacts" -> "contact.created").
type CaptureConfig struct {
	Entities map[string]string `mapstructure:"entities"`
}

type QueueConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	ReclaimAfter    time.Duration `mapstructure:"reclaim_after"`
}

type DispatcherConfig struct {
	WorkerCount  int           `mapstructure:"worker_count"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	IdleDelay    time.Duration `mapstructure:"idle_delay"`
	MaxParallel  int           `mapstructure:"max_parallel_deliveries"`
}

type DeliveryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type SafetyConfig struct {
	AllowHosts []string `mapstructure:"allow_hosts"`
	ResolveDNS bool     `mapstructure:"resolve_dns"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
}

type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type OpsConfig struct {
	Token string `mapstructure:"token"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (WHRELAY_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (WHRELAY_*)
	v.SetEnvPrefix("WHRELAY")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
