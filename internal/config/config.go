package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Event drivers
const (
	EventsKafka = "kafka"
	EventsNATS  = "nats"
	EventsNone  = "none"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	IGDB     IGDBConfig     `yaml:"igdb"`
	Search   SearchConfig   `yaml:"search"`
	Events   EventsConfig   `yaml:"events"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	NATS     NATSConfig     `yaml:"nats"`
	Backup   BackupConfig   `yaml:"backup"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// RateLimit is the number of provider-backed requests allowed per IP per minute
	RateLimit   int      `yaml:"rate_limit"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects where the collection blob lives
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Key     string `yaml:"key"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// IGDBConfig holds metadata provider credentials and endpoints
type IGDBConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	BaseURL      string        `yaml:"base_url"`
	TokenURL     string        `yaml:"token_url"`
	ImageBaseURL string        `yaml:"image_base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	// CacheSize bounds the number of game detail records kept in memory
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// HasCredentials reports whether both client id and secret are set
func (c *IGDBConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// SearchConfig holds search session configuration
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Limit    int           `yaml:"limit"`
	MaxLimit int           `yaml:"max_limit"`
}

// EventsConfig selects where collection events are published
type EventsConfig struct {
	Driver string `yaml:"driver"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	EventsTopic     string        `yaml:"events_topic"`
	CommandsTopic   string        `yaml:"commands_topic"`
	GroupID         string        `yaml:"group_id"`
	CommandsEnabled bool          `yaml:"commands_enabled"`
	BatchSize       int           `yaml:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"`
}

// BackupConfig holds backup worker configuration
type BackupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Key      string        `yaml:"key"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects unknown backend and driver names
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendRedis, BackendPostgres, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Events.Driver {
	case EventsKafka, EventsNATS, EventsNone:
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 120
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendRedis
	}
	if c.Storage.Key == "" {
		c.Storage.Key = "aerolab-game-collection"
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// MongoDB defaults
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "gamedex"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "blobs"
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = 10 * time.Second
	}

	// IGDB defaults
	if c.IGDB.BaseURL == "" {
		c.IGDB.BaseURL = "https://api.igdb.com/v4"
	}
	if c.IGDB.TokenURL == "" {
		c.IGDB.TokenURL = "https://id.twitch.tv/oauth2/token"
	}
	if c.IGDB.ImageBaseURL == "" {
		c.IGDB.ImageBaseURL = "https://images.igdb.com/igdb/image/upload"
	}
	if c.IGDB.Timeout == 0 {
		c.IGDB.Timeout = 10 * time.Second
	}
	if c.IGDB.CacheSize == 0 {
		c.IGDB.CacheSize = 256
	}
	if c.IGDB.CacheTTL == 0 {
		c.IGDB.CacheTTL = 10 * time.Minute
	}

	// Search defaults
	if c.Search.Debounce == 0 {
		c.Search.Debounce = 500 * time.Millisecond
	}
	if c.Search.Limit == 0 {
		c.Search.Limit = 10
	}
	if c.Search.MaxLimit == 0 {
		c.Search.MaxLimit = 50
	}

	if c.Events.Driver == "" {
		c.Events.Driver = EventsNone
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "collection-events"
	}
	if c.Kafka.CommandsTopic == "" {
		c.Kafka.CommandsTopic = "collection-commands"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "gamedex-collection"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 50
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// NATS defaults
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "gamedex.collection"
	}

	// Backup defaults
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 15 * time.Minute
	}
	if c.Backup.Key == "" {
		c.Backup.Key = c.Storage.Key
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
