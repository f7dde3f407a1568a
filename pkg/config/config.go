package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultEndpoint is the PageSpeed Insights v5 endpoint.
	DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

	// DefaultTimeout is the default timeout for upstream PSI requests.
	DefaultTimeout = "30s"

	// DefaultSQLitePath is the default SQLite database location.
	DefaultSQLitePath = "./pagespeedoor.db"

	// DefaultHistoryLimit is the number of records returned when no
	// limit query parameter is given.
	DefaultHistoryLimit = 100

	// MaxHistoryLimit caps the limit query parameter.
	MaxHistoryLimit = 1000
)

// Config is the root configuration for pagespeedoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	PageSpeed PageSpeedConfig `yaml:"pagespeed" mapstructure:"pagespeed"`
	Archive   ArchiveConfig   `yaml:"archive,omitempty" mapstructure:"archive"`
	History   HistoryConfig   `yaml:"history,omitempty" mapstructure:"history"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Public  RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Analyze RateLimitTier `yaml:"analyze,omitempty" mapstructure:"analyze"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// PageSpeedConfig contains settings for the upstream PSI API.
type PageSpeedConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout  string `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// ParsedTimeout returns the upstream request timeout as a duration.
func (c *PageSpeedConfig) ParsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultTimeout)
	}

	return d
}

// ArchiveConfig contains raw-response archival settings. At most one
// backend (local or S3) may be enabled at a time.
type ArchiveConfig struct {
	Local *LocalArchiveConfig `yaml:"local,omitempty" mapstructure:"local"`
	S3    *S3ArchiveConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
}

// LocalArchiveConfig archives raw PSI responses to a local directory.
type LocalArchiveConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// S3ArchiveConfig archives raw PSI responses to an S3 bucket.
type S3ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// HistoryConfig contains settings for the history endpoints.
type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit,omitempty" mapstructure:"default_limit"`
	MaxLimit     int `yaml:"max_limit,omitempty" mapstructure:"max_limit"`
}

// Load reads the configuration file at path and applies environment
// variable overrides with the PAGESPEEDOOR_ prefix (e.g.
// PAGESPEEDOOR_GLOBAL_LOG_LEVEL=debug). Defaults are registered up
// front so env overrides apply even for keys absent from the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAGESPEEDOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every known key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.public.requests_per_minute", 120)
	v.SetDefault("server.rate_limit.analyze.requests_per_minute", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("pagespeed.endpoint", DefaultEndpoint)
	v.SetDefault("pagespeed.api_key", "")
	v.SetDefault("pagespeed.timeout", DefaultTimeout)

	v.SetDefault("history.default_limit", DefaultHistoryLimit)
	v.SetDefault("history.max_limit", MaxHistoryLimit)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.PageSpeed.Endpoint == "" {
		return fmt.Errorf("pagespeed.endpoint is required")
	}

	if _, err := time.ParseDuration(c.PageSpeed.Timeout); err != nil {
		return fmt.Errorf("parsing pagespeed.timeout: %w", err)
	}

	localEnabled := c.Archive.Local != nil && c.Archive.Local.Enabled
	s3Enabled := c.Archive.S3 != nil && c.Archive.S3.Enabled

	if localEnabled && s3Enabled {
		return fmt.Errorf("archive: cannot enable both local and s3 backends")
	}

	if localEnabled && c.Archive.Local.Dir == "" {
		return fmt.Errorf("archive.local.dir is required")
	}

	if s3Enabled && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("archive.s3.bucket is required")
	}

	if c.History.DefaultLimit <= 0 {
		return fmt.Errorf("history.default_limit must be positive")
	}

	if c.History.MaxLimit < c.History.DefaultLimit {
		return fmt.Errorf("history.max_limit must be >= history.default_limit")
	}

	return nil
}
