// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageFile     = "file"
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Trace exporters accepted by TRACING_EXPORTER.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env string `mapstructure:"APP_ENV"`

	APIURL      string        `mapstructure:"API_URL"`
	RealtimeURL string        `mapstructure:"REALTIME_URL"`
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	StoragePath   string `mapstructure:"STORAGE_PATH"`
	RedisURL      string `mapstructure:"REDIS_URL"`
	DatabaseDSN   string `mapstructure:"DATABASE_DSN"`

	FeedCacheTTL      time.Duration `mapstructure:"FEED_CACHE_TTL"`
	FeedSampleSize    int           `mapstructure:"FEED_SAMPLE_SIZE"`
	RollbackOnFailure bool          `mapstructure:"ROLLBACK_ON_FAILURE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	MetricsEnabled      bool    `mapstructure:"METRICS_ENABLED"`

	RelayPort           string `mapstructure:"RELAY_PORT"`
	RelayJWTSecret      string `mapstructure:"RELAY_JWT_SECRET"`
	RelayAllowedOrigins string `mapstructure:"RELAY_ALLOWED_ORIGINS"`
}

var configKeys = []string{
	"APP_ENV", "API_URL", "REALTIME_URL", "HTTP_TIMEOUT",
	"STORAGE_DRIVER", "STORAGE_PATH", "REDIS_URL", "DATABASE_DSN",
	"FEED_CACHE_TTL", "FEED_SAMPLE_SIZE", "ROLLBACK_ON_FAILURE",
	"LOG_LEVEL", "LOG_FORMAT",
	"TRACING_ENABLED", "TRACING_EXPORTER", "OTLP_ENDPOINT", "TRACING_SAMPLER_RATIO", "METRICS_ENABLED",
	"RELAY_PORT", "RELAY_JWT_SECRET", "RELAY_ALLOWED_ORIGINS",
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows about.
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}

	// The base config file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env != "" && env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("API_URL", "http://localhost:3000")
	v.SetDefault("REALTIME_URL", "ws://localhost:3001/ws")
	v.SetDefault("HTTP_TIMEOUT", 10*time.Second)
	v.SetDefault("STORAGE_DRIVER", StorageFile)
	v.SetDefault("STORAGE_PATH", ".pellicule")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("FEED_CACHE_TTL", time.Hour)
	v.SetDefault("FEED_SAMPLE_SIZE", 20)
	v.SetDefault("ROLLBACK_ON_FAILURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", ExporterStdout)
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("RELAY_PORT", "3001")
	v.SetDefault("RELAY_JWT_SECRET", "")
	v.SetDefault("RELAY_ALLOWED_ORIGINS", "*")
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.TracingExporter = strings.ToLower(strings.TrimSpace(c.TracingExporter))
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
}

// IsProduction reports whether APP_ENV names a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and consistent.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("API_URL is required")
	}
	if c.FeedCacheTTL <= 0 {
		return errors.New("FEED_CACHE_TTL must be positive")
	}
	if c.FeedSampleSize <= 0 {
		return errors.New("FEED_SAMPLE_SIZE must be positive")
	}

	switch c.StorageDriver {
	case StorageFile:
		if c.StoragePath == "" {
			return errors.New("STORAGE_PATH is required for the file storage driver")
		}
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis storage driver")
		}
	case StorageSQLite, StoragePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the %s storage driver", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}

	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}
	if c.TracingEnabled && c.TracingExporter != ExporterStdout && c.TracingExporter != ExporterOTLP {
		return fmt.Errorf("unsupported TRACING_EXPORTER %q", c.TracingExporter)
	}

	if c.IsProduction() {
		if strings.HasPrefix(c.APIURL, "http://") {
			log.Println("WARNING: API_URL is not using TLS in production.")
		}
		if c.RelayJWTSecret != "" && len(c.RelayJWTSecret) < 32 {
			return errors.New("RELAY_JWT_SECRET must be at least 32 characters in production")
		}
		if c.RelayAllowedOrigins == "*" {
			log.Println("WARNING: RELAY_ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
