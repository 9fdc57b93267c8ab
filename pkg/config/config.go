// Package config loads application configuration from YAML files with
// environment-variable overrides. Every service (ingestion, indexer,
// searcher) reads the same file and picks the sections it needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Occurrence store backends.
const (
	OccurrenceBackendMemory   = "memory"
	OccurrenceBackendPostgres = "postgres"
	OccurrenceBackendRedis    = "redis"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimitPerMinute caps requests per client IP; 0 disables limiting.
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int      `yaml:"rateLimitBurst"`
	CORSOrigins        []string `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters for the occurrence
// store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection parameters for the occurrence store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// IndexConfig controls the on-disk index store and the indexer's buffering
// of postings before they are merged into term records.
type IndexConfig struct {
	DataDir           string        `yaml:"dataDir"`
	IOTimeout         time.Duration `yaml:"ioTimeout"`
	FlushInterval     time.Duration `yaml:"flushInterval"`
	FlushThreshold    int           `yaml:"flushThreshold"`
	OccurrenceBackend string        `yaml:"occurrenceBackend"`
	RefreshInterval   time.Duration `yaml:"refreshInterval"`
}

// CacheConfig sizes the document and term caches.
type CacheConfig struct {
	DocumentCacheSize int           `yaml:"documentCacheSize"`
	TermCacheSize     int           `yaml:"termCacheSize"`
	TermIdleExpiry    time.Duration `yaml:"termIdleExpiry"`
}

// SearchConfig controls query execution.
type SearchConfig struct {
	MaxResults   int `yaml:"maxResults"`
	DefaultLimit int `yaml:"defaultLimit"`
	DefaultSlop  int `yaml:"defaultSlop"`
	Parallelism  int `yaml:"parallelism"`
}

// AnalysisConfig selects the text pipeline used for documents and queries.
type AnalysisConfig struct {
	DefaultLanguage string `yaml:"defaultLanguage"`
	CaseFolding     bool   `yaml:"caseFolding"`
	StopWords       bool   `yaml:"stopWords"`
	Stemming        bool   `yaml:"stemming"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging for search requests.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Index.DataDir == "" {
		return fmt.Errorf("config: index.dataDir is required")
	}
	switch c.Index.OccurrenceBackend {
	case OccurrenceBackendMemory, OccurrenceBackendPostgres, OccurrenceBackendRedis:
	default:
		return fmt.Errorf("config: unknown index.occurrenceBackend %q", c.Index.OccurrenceBackend)
	}
	if c.Cache.DocumentCacheSize <= 0 {
		return fmt.Errorf("config: cache.documentCacheSize must be positive")
	}
	if c.Cache.TermIdleExpiry <= 0 {
		return fmt.Errorf("config: cache.termIdleExpiry must be positive")
	}
	if c.Search.DefaultSlop < 0 {
		return fmt.Errorf("config: search.defaultSlop must not be negative")
	}
	return nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "argus",
			User:            "argus",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "argus-indexer",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				CacheInvalidate: "cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "argus:occ:",
		},
		Index: IndexConfig{
			DataDir:           "data",
			IOTimeout:         2 * time.Second,
			FlushInterval:     5 * time.Second,
			FlushThreshold:    10000,
			OccurrenceBackend: OccurrenceBackendMemory,
			RefreshInterval:   10 * time.Second,
		},
		Cache: CacheConfig{
			DocumentCacheSize: 10000,
			TermCacheSize:     0,
			TermIdleExpiry:    20 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:   1000,
			DefaultLimit: 20,
			DefaultSlop:  0,
		},
		Analysis: AnalysisConfig{
			DefaultLanguage: "en",
			CaseFolding:     true,
			StopWords:       true,
			Stemming:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads ARGUS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setInt("ARGUS_SERVER_PORT", &cfg.Server.Port)
	setInt("ARGUS_SERVER_RATE_LIMIT_PER_MINUTE", &cfg.Server.RateLimitPerMinute)
	setString("ARGUS_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("ARGUS_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("ARGUS_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("ARGUS_POSTGRES_USER", &cfg.Postgres.User)
	setString("ARGUS_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("ARGUS_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("ARGUS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("ARGUS_REDIS_ADDR", &cfg.Redis.Addr)
	setString("ARGUS_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("ARGUS_INDEX_DATA_DIR", &cfg.Index.DataDir)
	setString("ARGUS_INDEX_OCCURRENCE_BACKEND", &cfg.Index.OccurrenceBackend)
	setDuration("ARGUS_INDEX_IO_TIMEOUT", &cfg.Index.IOTimeout)
	setInt("ARGUS_CACHE_DOCUMENT_SIZE", &cfg.Cache.DocumentCacheSize)
	setDuration("ARGUS_CACHE_TERM_IDLE_EXPIRY", &cfg.Cache.TermIdleExpiry)
	setString("ARGUS_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("ARGUS_LOGGING_FORMAT", &cfg.Logging.Format)
}
