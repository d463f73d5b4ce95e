package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment variable, e.g. APP_SERVER_PORT
const EnvPrefix = "APP"

// Config represents the complete application configuration
type Config struct {
	ProjectName string `yaml:"project_name" envconfig:"PROJECT_NAME"`
	APIV1Str    string `yaml:"api_v1_str" envconfig:"API_V1_STR"`
	Version     string `yaml:"version" envconfig:"VERSION"`

	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Security    SecurityConfig    `yaml:"security" envconfig:"SECURITY"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOG"`
	Storage     StorageConfig     `yaml:"storage" envconfig:"STORAGE"`
	GCP         GCPConfig         `yaml:"gcp" envconfig:"GCP"`
	Database    DatabaseConfig    `yaml:"database" envconfig:"DATABASE"`
	Pipeline    PipelineConfig    `yaml:"pipeline" envconfig:"PIPELINE"`
	Predictions PredictionsConfig `yaml:"predictions" envconfig:"PREDICTIONS"`
	WebSocket   WebSocketConfig   `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains CORS, rate limiting and API key configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// APIKeys maps key to client name. When set, starting and cancelling
	// operations requires an X-API-Key header. Env form: key1:name1,key2:name2
	APIKeys      map[string]string `yaml:"api_keys" envconfig:"API_KEYS"`
	MaxBodyBytes int64             `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// Storage backends
const (
	BackendFS       = "fs"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// StorageConfig selects where buckets live
type StorageConfig struct {
	Backend   string `yaml:"backend" envconfig:"BACKEND"`
	LocalRoot string `yaml:"local_root" envconfig:"LOCAL_ROOT"`
	// Concurrency bounds parallel blob loads in bucket joins
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// GCPConfig contains Google Cloud Storage settings
type GCPConfig struct {
	Project     string `yaml:"project" envconfig:"PROJECT"`
	Credentials string `yaml:"credentials" envconfig:"CREDENTIALS"`
	// Endpoint overrides the storage API endpoint, e.g. for an emulator
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
}

// DatabaseConfig contains the Postgres connection used for player_stats
type DatabaseConfig struct {
	DSN      string `yaml:"dsn" envconfig:"DSN"`
	Schema   string `yaml:"schema" envconfig:"SCHEMA"`
	Table    string `yaml:"table" envconfig:"TABLE"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
}

// PipelineConfig contains batch pipeline settings
type PipelineConfig struct {
	Seed             uint64        `yaml:"seed" envconfig:"SEED"`
	SplitSeason      int           `yaml:"split_season" envconfig:"SPLIT_SEASON"`
	FIFACodesSource  string        `yaml:"fifa_codes_source" envconfig:"FIFA_CODES_SOURCE"`
	DefinitionsDir   string        `yaml:"definitions_dir" envconfig:"DEFINITIONS_DIR"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT"`
	MaxRetries       int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	RetryDelay       time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
	MaxConcurrent    int           `yaml:"max_concurrent" envconfig:"MAX_CONCURRENT"`
}

// PredictionsConfig locates the precomputed predictions table
type PredictionsConfig struct {
	Bucket   string        `yaml:"bucket" envconfig:"BUCKET"`
	Blob     string        `yaml:"blob" envconfig:"BLOB"`
	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// TelemetryConfig toggles tracing and metrics
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// Load builds the configuration from defaults, then the YAML file when one
// is found, then APP_* environment variables. Later sources win.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file. An empty path skips the
// file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg. Keys absent from the file
// keep their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if !strings.HasPrefix(c.APIV1Str, "/") {
		return fmt.Errorf("api prefix must start with /: %q", c.APIV1Str)
	}

	switch c.Storage.Backend {
	case BackendFS:
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage local_root is required for the fs backend")
		}
	case BackendGCS:
		if c.GCP.Project == "" {
			return fmt.Errorf("gcp project is required for the gcs backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	if c.Storage.Concurrency <= 0 {
		c.Storage.Concurrency = 4
	}

	if c.Predictions.Bucket == "" || c.Predictions.Blob == "" {
		return fmt.Errorf("predictions bucket and blob are required")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline max retries cannot be negative")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		c.Logging.Format = "json"
	}
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		ProjectName: "Football API",
		APIV1Str:    "/api/v1",
		Version:     "dev",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080", "http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Storage: StorageConfig{
			Backend:     BackendFS,
			LocalRoot:   "data",
			Concurrency: 4,
		},
		Database: DatabaseConfig{
			Schema:   "public",
			Table:    "player_stats",
			MaxConns: 4,
		},
		Pipeline: PipelineConfig{
			Seed:             42,
			SplitSeason:      2022,
			FIFACodesSource:  "https://en.wikipedia.org/wiki/List_of_FIFA_country_codes",
			DefinitionsDir:   "configs/pipelines",
			OperationTimeout: 2 * time.Hour,
			MaxRetries:       2,
			RetryDelay:       2 * time.Second,
			MaxConcurrent:    2,
		},
		Predictions: PredictionsConfig{
			Bucket:   "values_predictions",
			Blob:     "attacking_predictions.csv",
			CacheTTL: 10 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "valuepulse",
			TracingEnabled: false,
			MetricsEnabled: true,
		},
	}
}
