package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled     bool          `yaml:"enabled"`
			Topic       string        `yaml:"topic" default:"entrygate.logs"`
			Interval    time.Duration `yaml:"interval" default:"30s"`
			Threshold   int           `yaml:"threshold" default:"100"`
			IncludeWarn bool          `yaml:"include_warn"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		WriteRateLimit  float64       `yaml:"write_rate_limit" default:"5"`
		WriteBurst      int           `yaml:"write_burst" default:"10"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	} `yaml:"server"`
	Metrics struct {
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Conditions struct {
		Backend         string        `yaml:"backend" default:"memory"`
		SeedFile        string        `yaml:"seed_file"`
		RefreshInterval time.Duration `yaml:"refresh_interval" default:"5s"`
		MemoryMaxSize   int           `yaml:"memory_max_size" default:"10000"`
		MemoryCleanup   time.Duration `yaml:"memory_cleanup" default:"1m"`
		Redis           struct {
			Addr        string        `yaml:"addr" default:"localhost:6379"`
			Password    string        `yaml:"password"`
			DB          int           `yaml:"db"`
			Prefix      string        `yaml:"prefix" default:"entrygate"`
			PoolSize    int           `yaml:"pool_size" default:"10"`
			MinIdle     int           `yaml:"min_idle" default:"2"`
			PoolTimeout time.Duration `yaml:"pool_timeout" default:"4s"`
		} `yaml:"redis"`
		Postgres struct {
			Host           string        `yaml:"host" default:"localhost"`
			Port           int           `yaml:"port" default:"5432"`
			User           string        `yaml:"user" default:"postgres"`
			Password       string        `yaml:"password"`
			Database       string        `yaml:"database" default:"entrygate"`
			SSLMode        string        `yaml:"ssl_mode" default:"disable"`
			MaxConns       int32         `yaml:"max_conns" default:"10"`
			ConnectTimeout time.Duration `yaml:"connect_timeout" default:"5s"`
		} `yaml:"postgres"`
	} `yaml:"conditions"`
	Engine struct {
		AllowDuplicateTicks bool `yaml:"allow_duplicate_ticks"`
		MaxOpenTicksPerSec  int  `yaml:"max_open_ticks_per_sec" default:"5"`
	} `yaml:"engine"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		SnapshotTopic string   `yaml:"snapshot_topic" default:"market.snapshots"`
		DecisionTopic string   `yaml:"decision_topic" default:"entry.decisions"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"entrygate"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"market.snapshots.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Feed struct {
		Enabled      bool          `yaml:"enabled"`
		URL          string        `yaml:"url"`
		Token        string        `yaml:"token"`
		Symbols      []string      `yaml:"symbols"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		ReconnectMin time.Duration `yaml:"reconnect_min" default:"1s"`
		ReconnectMax time.Duration `yaml:"reconnect_max" default:"30s"`
	} `yaml:"feed"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"entrygate"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendLayered  = "layered"
	BackendPostgres = "postgres"
)

// Load reads a YAML file, fills unset fields from defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes the same way Load does.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (when present), the YAML file, then applies
// environment overrides and validates again.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENTRYGATE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("CONDITIONS_BACKEND"); v != "" {
		c.Conditions.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Conditions.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Conditions.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Conditions.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Conditions.Postgres.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_SNAPSHOT_TOPIC"); v != "" {
		c.Kafka.SnapshotTopic = v
	}
	if v := os.Getenv("KAFKA_DECISION_TOPIC"); v != "" {
		c.Kafka.DecisionTopic = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
		c.Feed.Enabled = true
	}
	if v := os.Getenv("FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Conditions.Backend {
	case BackendMemory, BackendRedis, BackendLayered, BackendPostgres:
	default:
		return fmt.Errorf("conditions.backend must be one of memory, redis, layered, postgres, got '%s'", c.Conditions.Backend)
	}
	if c.Conditions.Backend == BackendPostgres && c.Conditions.Postgres.Database == "" {
		return fmt.Errorf("conditions.postgres.database is required for the postgres backend")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Log.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collector requires kafka")
	}
	if c.Feed.Enabled && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when the feed is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}

// PostgresDSN builds a pgx connection string.
func (c *Config) PostgresDSN() string {
	p := c.Conditions.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}
