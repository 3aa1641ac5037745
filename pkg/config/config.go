package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"FinPulse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Universe    UniverseConfig   `yaml:"universe"`
	Ingestion   IngestionConfig  `yaml:"ingestion"`
	Fetcher     FetcherConfig    `yaml:"fetcher"`
	Store       StoreConfig      `yaml:"store"`
	Finnhub     FinnhubConfig    `yaml:"finnhub"`
	Embedding   EmbeddingConfig  `yaml:"embedding"`
	Generative  GenerativeConfig `yaml:"generative"`
	Query       QueryConfig      `yaml:"query"`
	Sink        SinkConfig       `yaml:"sink"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	NATS        NATSConfig       `yaml:"nats"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Cache       CacheConfig      `yaml:"cache"`
	Heartbeat   HeartbeatConfig  `yaml:"heartbeat"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
	Output string `yaml:"output" default:"stdout"`
	// ShipErrors publishes aggregated error digests to kafka.log_topic.
	ShipErrors    bool          `yaml:"ship_errors"`
	ShipInterval  time.Duration `yaml:"ship_interval" default:"30s"`
	ShipThreshold int           `yaml:"ship_threshold" default:"100"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"40s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	// WSPongWait is how long a silent WebSocket client is kept; pings go out at 9/10 of it.
	WSPongWait  time.Duration `yaml:"ws_pong_wait" default:"60s"`
	DisableCORS bool          `yaml:"disable_cors"`
	// AdminToken guards /api/admin/*. Empty leaves the admin routes open.
	AdminToken string `yaml:"admin_token"`
}

type MetricsConfig struct {
	Path string `yaml:"path" default:"/metrics"`
}

// UniverseConfig is the fixed instrument universe, in scan order.
type UniverseConfig struct {
	Symbols         []string           `yaml:"symbols"`
	Names           map[string]string  `yaml:"names"`
	ReferencePrices map[string]float64 `yaml:"reference_prices"`
}

type IngestionConfig struct {
	Interval     time.Duration `yaml:"interval" default:"60s"`
	PacingMin    time.Duration `yaml:"pacing_min" default:"500ms"`
	PacingMax    time.Duration `yaml:"pacing_max" default:"1500ms"`
	FailureRatio float64       `yaml:"failure_ratio" default:"0.6"`
	Cooldown     time.Duration `yaml:"cooldown" default:"30s"`
	EmbedTimeout time.Duration `yaml:"embed_timeout" default:"5s"`
	// SyntheticWalkPct bounds the synthetic random walk around the reference price.
	SyntheticWalkPct float64 `yaml:"synthetic_walk_pct" default:"3"`
	// SyntheticOnly starts in degraded mode without contacting the provider.
	SyntheticOnly  bool `yaml:"synthetic_only"`
	ObserverBuffer int  `yaml:"observer_buffer" default:"256"`
}

type FetcherConfig struct {
	MaxAttempts         int           `yaml:"max_attempts" default:"3"`
	BaseDelay           time.Duration `yaml:"base_delay" default:"600ms"`
	RequestTimeout      time.Duration `yaml:"request_timeout" default:"10s"`
	LookbackDays        int           `yaml:"lookback_days" default:"1"`
	WidenedLookbackDays int           `yaml:"widened_lookback_days" default:"5"`
}

type StoreConfig struct {
	Capacity        int     `yaml:"capacity" default:"2000"`
	AlertWindow     int     `yaml:"alert_window" default:"200"`
	AlertThreshold  float64 `yaml:"alert_threshold" default:"3"`
	AnalyticsWindow int     `yaml:"analytics_window" default:"100"`
}

type FinnhubConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
	SymbolSuffix string        `yaml:"symbol_suffix"`
	ProfileTTL   time.Duration `yaml:"profile_ttl" default:"6h"`
}

type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" default:"hash"`
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model" default:"all-MiniLM-L6-v2"`
	Dimension int           `yaml:"dimension" default:"384"`
	Timeout   time.Duration `yaml:"timeout" default:"5s"`
}

type GenerativeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url" default:"https://api.groq.com/openai/v1"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model" default:"llama-3.3-70b-versatile"`
	Temperature float64       `yaml:"temperature" default:"0.7"`
	MaxTokens   int           `yaml:"max_tokens" default:"1024"`
	Timeout     time.Duration `yaml:"timeout" default:"25s"`
	// FailureLimit trips the breaker after this many consecutive failed calls; a negative value disables it.
	FailureLimit int `yaml:"failure_limit" default:"5"`
}

type QueryConfig struct {
	TopK         int     `yaml:"top_k" default:"5"`
	RateCapacity float64 `yaml:"rate_capacity" default:"10"`
	RateRefill   float64 `yaml:"rate_refill" default:"0.5"`
}

// SinkConfig selects where appended snapshots are published: none, kafka, nats or clickhouse.
type SinkConfig struct {
	Type           string        `yaml:"type" default:"none"`
	BufferSize     int           `yaml:"buffer_size" default:"1024"`
	MaxAttempts    int           `yaml:"max_attempts" default:"5"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
	BackoffMin     time.Duration `yaml:"backoff_min" default:"50ms"`
	BackoffMax     time.Duration `yaml:"backoff_max" default:"2s"`
	// MinInterval drops snapshots of an instrument published closer than this to the previous one. 0 publishes all.
	MinInterval time.Duration `yaml:"min_interval"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"finpulse.snapshots"`
	LogTopic     string   `yaml:"log_topic" default:"finpulse.ops.errors"`
	RequiredAcks int      `yaml:"required_acks" default:"1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"finpulse-archiver"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"finpulse.snapshots.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
	// Archive consumes the snapshot topic into ClickHouse.
	Archive bool `yaml:"archive"`
}

type NATSConfig struct {
	URL           string        `yaml:"url" default:"nats://localhost:4222"`
	Stream        string        `yaml:"stream" default:"FINPULSE"`
	SubjectPrefix string        `yaml:"subject_prefix" default:"finpulse.snapshots"`
	MaxAge        time.Duration `yaml:"max_age" default:"24h"`
}

type ClickHouseConfig struct {
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"finpulse"`
	Table        string        `yaml:"table" default:"market_snapshots"`
	TTLDays      int           `yaml:"ttl_days" default:"90"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	AsyncInsert  bool          `yaml:"async_insert"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
}

type CacheConfig struct {
	MemoryMaxItems int `yaml:"memory_max_items" default:"1000"`
	Redis          struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"finpulse"`

		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
	} `yaml:"redis"`
}

type HeartbeatConfig struct {
	Schedule string `yaml:"schedule" default:"@every 30s"`
}

// Load reads a YAML configuration file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.normalize()
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then environment overrides, then validates.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Universe.Symbols = util.SplitCSV(v)
	}
	if v := getenv("GENERATIVE_API_KEY"); v != "" {
		c.Generative.APIKey = v
	} else if v := getenv("GROQ_API_KEY"); v != "" {
		c.Generative.APIKey = v
	}
	if c.Generative.APIKey != "" && getenv("GENERATIVE_DISABLED") == "" {
		c.Generative.Enabled = true
	}
	if v := getenv("SINK_TYPE"); v != "" {
		c.Sink.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
		c.Cache.Redis.Enabled = true
	}
	c.normalize()
}

func (c *Config) normalize() {
	for i, s := range c.Universe.Symbols {
		c.Universe.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	c.Sink.Type = strings.ToLower(strings.TrimSpace(c.Sink.Type))
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Universe.Symbols) == 0 {
		return fmt.Errorf("universe.symbols cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Universe.Symbols))
	for _, s := range c.Universe.Symbols {
		if s == "" {
			return fmt.Errorf("universe.symbols contains an empty symbol")
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("universe.symbols contains %q twice", s)
		}
		seen[s] = struct{}{}
	}
	if c.Store.Capacity < 1 {
		return fmt.Errorf("store.capacity must be positive, got %d", c.Store.Capacity)
	}
	if c.Ingestion.Interval <= 0 {
		return fmt.Errorf("ingestion.interval must be positive")
	}
	if c.Ingestion.PacingMin < 0 || c.Ingestion.PacingMin > c.Ingestion.PacingMax {
		return fmt.Errorf("ingestion.pacing_min must be within [0, pacing_max]")
	}
	if c.Ingestion.FailureRatio < 0 || c.Ingestion.FailureRatio > 1 {
		return fmt.Errorf("ingestion.failure_ratio must be within [0, 1]")
	}
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("fetcher.max_attempts must be at least 1")
	}
	if c.Fetcher.LookbackDays < 1 || c.Fetcher.WidenedLookbackDays < c.Fetcher.LookbackDays {
		return fmt.Errorf("fetcher lookbacks must satisfy 1 <= lookback_days <= widened_lookback_days")
	}
	if !c.Ingestion.SyntheticOnly && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required unless ingestion.synthetic_only is set")
	}

	switch c.Embedding.Provider {
	case "hash":
	case "http":
		if c.Embedding.URL == "" {
			return fmt.Errorf("embedding.url is required for the http provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be 'hash' or 'http', got '%s'", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be positive")
	}

	if c.Generative.Enabled && c.Generative.BaseURL == "" {
		return fmt.Errorf("generative.base_url is required when generative is enabled")
	}
	if c.Generative.Timeout <= 0 || c.Generative.Timeout > 30*time.Second {
		return fmt.Errorf("generative.timeout must be within (0s, 30s], got %s", c.Generative.Timeout)
	}
	if c.Query.TopK < 1 {
		return fmt.Errorf("query.top_k must be at least 1")
	}

	switch c.Sink.Type {
	case "none", "clickhouse":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka sink")
		}
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the nats sink")
		}
	default:
		return fmt.Errorf("sink.type must be one of none, kafka, nats, clickhouse; got '%s'", c.Sink.Type)
	}
	if c.Sink.BackoffMax < c.Sink.BackoffMin {
		return fmt.Errorf("sink.backoff_max must not be below sink.backoff_min")
	}
	if c.Sink.MinInterval < 0 {
		return fmt.Errorf("sink.min_interval must not be negative")
	}
	if (c.Kafka.Archive || c.Log.ShipErrors) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for kafka.archive and log.ship_errors")
	}
	if strings.TrimSpace(c.Heartbeat.Schedule) == "" {
		return fmt.Errorf("heartbeat.schedule is required")
	}
	return nil
}

// KafkaEnabled reports whether any component needs a Kafka producer.
func (c *Config) KafkaEnabled() bool {
	return c.Sink.Type == "kafka" || c.Log.ShipErrors
}

// ClickHouseEnabled reports whether any component writes to ClickHouse.
func (c *Config) ClickHouseEnabled() bool {
	return c.Sink.Type == "clickhouse" || c.Kafka.Archive
}
