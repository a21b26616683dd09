package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. RETAIL_SERVER_PORT.
const EnvPrefix = "RETAIL"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Ingest    IngestConfig    `yaml:"ingest" envconfig:"INGEST"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
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

// TelemetryConfig controls OpenTelemetry tracing and metrics.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	ServiceVersion string `yaml:"service_version" envconfig:"SERVICE_VERSION"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceStdout    bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
}

// IngestConfig bounds uploaded files.
type IngestConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	MaxRows        int   `yaml:"max_rows" envconfig:"MAX_ROWS"`
}

// AnalyticsConfig carries the tunable constants of the analytics core.
// ColumnAliases maps a semantic field name (sku, cost, quantity, ...) to
// extra header spellings tried after the built-in ones; it can only be set
// from the YAML file.
type AnalyticsConfig struct {
	HistoryWindowDays       float64             `yaml:"history_window_days" envconfig:"HISTORY_WINDOW_DAYS"`
	DetectionGroupRatio     float64             `yaml:"detection_group_ratio" envconfig:"DETECTION_GROUP_RATIO"`
	DetectionMinScore       int                 `yaml:"detection_min_score" envconfig:"DETECTION_MIN_SCORE"`
	PromoSpendRate          float64             `yaml:"promo_spend_rate" envconfig:"PROMO_SPEND_RATE"`
	FulfillmentCostPerUnit  float64             `yaml:"fulfillment_cost_per_unit" envconfig:"FULFILLMENT_COST_PER_UNIT"`
	BrandErosionDiscountPct float64             `yaml:"brand_erosion_discount_pct" envconfig:"BRAND_EROSION_DISCOUNT_PCT"`
	DefaultReorderPoint     float64             `yaml:"default_reorder_point" envconfig:"DEFAULT_REORDER_POINT"`
	DefaultElasticity       float64             `yaml:"default_elasticity" envconfig:"DEFAULT_ELASTICITY"`
	Elasticities            map[string]float64  `yaml:"elasticities" envconfig:"ELASTICITIES"`
	ColumnAliases           map[string][]string `yaml:"column_aliases" ignored:"true"`
}

// Load builds the configuration from defaults, then the YAML file (if one
// is found), then RETAIL_* environment variables. Later sources win.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
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

// loadFromFile overlays a YAML file on cfg. Keys absent from the file keep
// their current values.
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

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	// Logs are always JSON.
	c.Logging.Format = "json"
	if c.Logging.Output != "console" && c.Logging.Output != "file" && c.Logging.Output != "both" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	if c.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingest max upload bytes must be positive")
	}
	return c.Analytics.validate()
}

func (a *AnalyticsConfig) validate() error {
	if a.HistoryWindowDays <= 0 {
		return fmt.Errorf("analytics history window must be positive, got %v", a.HistoryWindowDays)
	}
	if a.DetectionGroupRatio <= 0 || a.DetectionGroupRatio > 1 {
		return fmt.Errorf("analytics detection group ratio must be in (0, 1], got %v", a.DetectionGroupRatio)
	}
	if a.DetectionMinScore <= 0 {
		return fmt.Errorf("analytics detection min score must be positive, got %d", a.DetectionMinScore)
	}
	if a.PromoSpendRate <= 0 || a.PromoSpendRate > 1 {
		return fmt.Errorf("analytics promo spend rate must be in (0, 1], got %v", a.PromoSpendRate)
	}
	if a.FulfillmentCostPerUnit <= 0 {
		return fmt.Errorf("analytics fulfillment cost per unit must be positive")
	}
	if a.DefaultElasticity <= 0 {
		return fmt.Errorf("analytics default elasticity must be positive")
	}
	for category, e := range a.Elasticities {
		if e <= 0 {
			return fmt.Errorf("analytics elasticity for %q must be positive, got %v", category, e)
		}
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
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			DataDir:    DefaultDataDir,
			ReportsDir: DefaultReportsDir,
			LogsDir:    DefaultLogsDir,
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			ServiceName:    ServiceName,
			ServiceVersion: AppVersion,
			Environment:    "development",
		},
		Ingest: IngestConfig{
			MaxUploadBytes: DefaultMaxUploadBytes,
			MaxRows:        DefaultMaxRows,
		},
		Analytics: AnalyticsConfig{
			HistoryWindowDays:       30,
			DetectionGroupRatio:     0.60,
			DetectionMinScore:       6,
			PromoSpendRate:          0.10,
			FulfillmentCostPerUnit:  2,
			BrandErosionDiscountPct: 30,
			DefaultReorderPoint:     10,
			DefaultElasticity:       1.5,
		},
	}
}
