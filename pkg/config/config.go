package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Input data
	DataPath           string `mapstructure:"DATA_PATH"`
	FeaturesPath       string `mapstructure:"FEATURES_PATH"`
	TargetColumn       string `mapstructure:"TARGET_COLUMN"`
	FilterOutSynthetic bool   `mapstructure:"FILTER_OUT_SYNTHETIC"`

	// Projection
	SplitYear       int     `mapstructure:"SPLIT_YEAR"`
	ProjectionYears int     `mapstructure:"PROJECTION_YEARS"`
	AgeLimit        float64 `mapstructure:"AGE_LIMIT"`
	ScaleLimit      float64 `mapstructure:"SCALE_LIMIT"`
	CapWorkers      int     `mapstructure:"CAP_WORKERS"`
	RidgeLambda     float64 `mapstructure:"RIDGE_LAMBDA"`
	ModelVersion    string  `mapstructure:"MODEL_VERSION"`

	// Output
	OutputDir   string `mapstructure:"OUTPUT_DIR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Redis
	RedisURL string        `mapstructure:"REDIS_URL"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
	// How long the redis circuit breaker stays open after tripping
	CacheBreakerTimeout time.Duration `mapstructure:"CACHE_BREAKER_TIMEOUT"`
	// How often the closed breaker forgets its failure counts
	CacheBreakerInterval time.Duration `mapstructure:"CACHE_BREAKER_INTERVAL"`

	// Run creation limit for the API; 0 disables it
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Scheduled refresh, standard 5-field cron spec
	ProjectionSchedule string `mapstructure:"PROJECTION_SCHEDULE"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	SetDefaults(v)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("DATA_PATH", "data/input/player_values.csv")
	v.SetDefault("FEATURES_PATH", "")
	v.SetDefault("TARGET_COLUMN", "market_value_in_million_eur")
	v.SetDefault("FILTER_OUT_SYNTHETIC", false)
	v.SetDefault("SPLIT_YEAR", 2023)
	v.SetDefault("PROJECTION_YEARS", 3)
	v.SetDefault("AGE_LIMIT", 32)
	v.SetDefault("SCALE_LIMIT", 0.8)
	v.SetDefault("CAP_WORKERS", 0) // 0 means GOMAXPROCS
	v.SetDefault("RIDGE_LAMBDA", 0.001)
	v.SetDefault("MODEL_VERSION", "1.0.0")
	v.SetDefault("OUTPUT_DIR", "data/output")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CACHE_BREAKER_TIMEOUT", "30s")
	v.SetDefault("CACHE_BREAKER_INTERVAL", "60s")
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("PROJECTION_SCHEDULE", "")
}

// Validate rejects settings the projection engine cannot run with.
func (c *Config) Validate() error {
	if c.ScaleLimit <= 0 || c.ScaleLimit > 1 {
		return fmt.Errorf("SCALE_LIMIT must be in (0, 1], got %v", c.ScaleLimit)
	}
	if c.ProjectionYears < 1 {
		return fmt.Errorf("PROJECTION_YEARS must be at least 1, got %d", c.ProjectionYears)
	}
	if c.RidgeLambda < 0 {
		return fmt.Errorf("RIDGE_LAMBDA must not be negative, got %v", c.RidgeLambda)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %v", c.RateLimitRPS)
	}
	if c.CapWorkers < 0 {
		return fmt.Errorf("CAP_WORKERS must not be negative, got %d", c.CapWorkers)
	}
	return nil
}

// LoggerOptions maps the logging settings onto pkg/logger.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Development: c.IsDevelopment(),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
