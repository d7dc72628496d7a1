package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Events       EventsConfig       `yaml:"events"`
	Capacity     CapacityConfig     `yaml:"capacity"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	LLM          LLMConfig          `yaml:"llm"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Sentry       SentryConfig       `yaml:"sentry"`
	Recorder     RecorderConfig     `yaml:"recorder"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Businesses   []BusinessConfig   `yaml:"businesses"`
}

type ServerConfig struct {
	Port         int             `yaml:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	MaxConns        int32         `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// Event drivers
const (
	DriverNone     = "none"
	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
)

type EventsConfig struct {
	Driver string `yaml:"driver"`
}

// Storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type CapacityConfig struct {
	Backend string `yaml:"backend"`
}

type SessionsConfig struct {
	Backend       string        `yaml:"backend"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Release     string `yaml:"release"`
}

type RecorderConfig struct {
	Prefetch int `yaml:"prefetch"`
}

type ConfirmationConfig struct {
	Phrases []string `yaml:"phrases"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			RateLimit:    RateLimitConfig{RequestsPerSecond: 5, Burst: 20},
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "pizzaline", Database: "pizzaline",
			MaxConns: 10, MaxConnLifetime: 5 * time.Minute, MaxConnIdleTime: time.Minute,
		},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", VHost: "/"},
		Kafka:    KafkaConfig{Brokers: "localhost:9092", Topic: "pizzaline.reservations"},
		Events:   EventsConfig{Driver: DriverNone},
		Capacity: CapacityConfig{Backend: BackendMemory},
		Sessions: SessionsConfig{Backend: BackendMemory, IdleTTL: 2 * time.Hour, SweepInterval: 5 * time.Minute},
		LLM:      LLMConfig{Temperature: 0.3, MaxTokens: 800, Timeout: 30 * time.Second},
		Archive:  ArchiveConfig{Prefix: "transcripts"},
		Recorder: RecorderConfig{Prefetch: 10},
	}
}

// Load reads the YAML file at path, when given, and applies PIZZALINE_*
// environment overrides on top
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setInt("PIZZALINE_PORT", &cfg.Server.Port)
	setString("PIZZALINE_LOG_LEVEL", &cfg.Log.Level)
	setString("PIZZALINE_LOG_FORMAT", &cfg.Log.Format)

	setString("PIZZALINE_DB_HOST", &cfg.Database.Host)
	setInt("PIZZALINE_DB_PORT", &cfg.Database.Port)
	setString("PIZZALINE_DB_USER", &cfg.Database.User)
	setString("PIZZALINE_DB_PASSWORD", &cfg.Database.Password)
	setString("PIZZALINE_DB_NAME", &cfg.Database.Database)

	setString("PIZZALINE_RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	setInt("PIZZALINE_RABBITMQ_PORT", &cfg.RabbitMQ.Port)
	setString("PIZZALINE_RABBITMQ_USER", &cfg.RabbitMQ.User)
	setString("PIZZALINE_RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password)

	setString("PIZZALINE_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	setString("PIZZALINE_EVENTS_DRIVER", &cfg.Events.Driver)
	setString("PIZZALINE_CAPACITY_BACKEND", &cfg.Capacity.Backend)
	setString("PIZZALINE_SESSIONS_BACKEND", &cfg.Sessions.Backend)

	setString("PIZZALINE_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("PIZZALINE_LLM_ENDPOINT", &cfg.LLM.Endpoint)
	setString("PIZZALINE_LLM_MODEL", &cfg.LLM.Model)

	setString("PIZZALINE_ARCHIVE_BUCKET", &cfg.Archive.Bucket)
	setString("PIZZALINE_ARCHIVE_REGION", &cfg.Archive.Region)
	if v := os.Getenv("PIZZALINE_ARCHIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.Enabled = b
		}
	}

	setString("SENTRY_DSN", &cfg.Sentry.DSN)
	setString("SENTRY_ENVIRONMENT", &cfg.Sentry.Environment)
	setString("APP_VERSION", &cfg.Sentry.Release)

	if v := os.Getenv("PIZZALINE_CONFIRMATION_PHRASES"); v != "" {
		cfg.Confirmation.Phrases = strings.Split(v, ",")
	}
}

// Validate checks the settings that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	switch c.Events.Driver {
	case DriverNone, DriverRabbitMQ, DriverKafka:
	default:
		return fmt.Errorf("events.driver must be one of none, rabbitmq, kafka; got %q", c.Events.Driver)
	}
	for name, backend := range map[string]string{"capacity.backend": c.Capacity.Backend, "sessions.backend": c.Sessions.Backend} {
		if backend != BackendMemory && backend != BackendPostgres {
			return fmt.Errorf("%s must be memory or postgres; got %q", name, backend)
		}
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive.bucket is required when the archive is enabled")
	}
	if c.Sessions.IdleTTL <= 0 || c.Sessions.SweepInterval <= 0 {
		return errors.New("sessions.idle_ttl and sessions.sweep_interval must be positive")
	}
	if c.Recorder.Prefetch < 1 {
		return errors.New("recorder.prefetch must be positive")
	}
	if _, err := c.DomainBusinesses(); err != nil {
		return err
	}
	return nil
}
