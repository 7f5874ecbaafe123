package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mayuresh141/urbanhcf/internal/db"
	"github.com/mayuresh141/urbanhcf/internal/resilience"
	"github.com/mayuresh141/urbanhcf/internal/uhi"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Raster   RasterConfig   `yaml:"raster" mapstructure:"raster"`
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the result store backend.
type StoreConfig struct {
	Driver        string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string        `yaml:"database_url" mapstructure:"database_url"`
	ResultTTLSecs int           `yaml:"result_ttl_secs" mapstructure:"result_ttl_secs"`
	KeyPrefix     string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	Pool          db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RasterConfig locates the feature and mask rasters.
type RasterConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	FeaturesPath string `yaml:"features_path" mapstructure:"features_path"`
	MaskPath     string `yaml:"mask_path" mapstructure:"mask_path"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	Table        string `yaml:"table" mapstructure:"table"`
	FeaturesName string `yaml:"features_name" mapstructure:"features_name"`
	MaskName     string `yaml:"mask_name" mapstructure:"mask_name"`
}

// ModelConfig locates the trained LST regressor.
type ModelConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnalysisConfig holds the analysis defaults and limits.
type AnalysisConfig struct {
	BufferKM           float64 `yaml:"buffer_km" mapstructure:"buffer_km"`
	MaxAbsLatitude     float64 `yaml:"max_abs_latitude" mapstructure:"max_abs_latitude"`
	ReferenceClass     string  `yaml:"reference_class" mapstructure:"reference_class"`
	ReferenceStatistic string  `yaml:"reference_statistic" mapstructure:"reference_statistic"`
	Percentile         float64 `yaml:"percentile" mapstructure:"percentile"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent      int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// Policy returns the configured UHI reference policy.
func (a AnalysisConfig) Policy() uhi.Policy {
	return uhi.Policy{Class: a.ReferenceClass, Statistic: a.ReferenceStatistic, Percentile: a.Percentile}
}

// GeocodeConfig configures the place-name geocoder.
type GeocodeConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Language       string  `yaml:"language" mapstructure:"language"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheSize      int     `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLMins   int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	RetryAttempts  int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialMs int     `yaml:"retry_initial_ms" mapstructure:"retry_initial_ms"`
	RetryMaxMs     int     `yaml:"retry_max_ms" mapstructure:"retry_max_ms"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures batch analysis.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("URBANHCF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is listed so that AutomaticEnv can bind it.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "urbanhcf.db")
	v.SetDefault("store.result_ttl_secs", 900)
	v.SetDefault("store.key_prefix", "uhi:")
	v.SetDefault("store.pool.max_conns", 0)
	v.SetDefault("store.pool.min_conns", 0)
	v.SetDefault("raster.driver", "geotiff")
	v.SetDefault("raster.features_path", "")
	v.SetDefault("raster.mask_path", "")
	v.SetDefault("raster.database_url", "")
	v.SetDefault("raster.table", "rasters")
	v.SetDefault("raster.features_name", "features")
	v.SetDefault("raster.mask_name", "urban_mask")
	v.SetDefault("model.path", "")
	v.SetDefault("model.format", "")
	v.SetDefault("analysis.buffer_km", 5.0)
	v.SetDefault("analysis.max_abs_latitude", 85.0)
	v.SetDefault("analysis.reference_class", "urban")
	v.SetDefault("analysis.reference_statistic", "percentile")
	v.SetDefault("analysis.percentile", 25.0)
	v.SetDefault("analysis.timeout_secs", 120)
	v.SetDefault("analysis.max_concurrent", 4)
	v.SetDefault("geocode.base_url", "https://geocoding-api.open-meteo.com/v1/search")
	v.SetDefault("geocode.language", "en")
	v.SetDefault("geocode.rate_limit", 5.0)
	v.SetDefault("geocode.cache_size", 512)
	v.SetDefault("geocode.cache_ttl_mins", 60)
	v.SetDefault("geocode.retry_attempts", 3)
	v.SetDefault("geocode.retry_initial_ms", 250)
	v.SetDefault("geocode.retry_max_ms", 5000)
	v.SetDefault("geocode.timeout_secs", 15)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "https://urbanhcf.netlify.app"})
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings the given command mode needs are
// present. Modes: "analyze", "batch", "serve", "features", "results",
// "migrate", "geocode". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	needStore, needRasters, needModel := false, false, false
	switch mode {
	case "analyze", "batch", "serve":
		needStore, needRasters, needModel = true, true, true
	case "features":
		needRasters = true
	case "results", "migrate":
		needStore = true
	case "geocode":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if needStore {
		switch c.Store.Driver {
		case "memory":
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for driver %s", c.Store.Driver)
			}
		default:
			add("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver)
		}
		if c.Store.ResultTTLSecs <= 0 {
			add("store.result_ttl_secs must be positive")
		}
	}

	if needRasters {
		switch c.Raster.Driver {
		case "geotiff":
			if c.Raster.FeaturesPath == "" {
				add("raster.features_path is required")
			}
			if c.Raster.MaskPath == "" {
				add("raster.mask_path is required")
			}
		case "postgis":
			if c.Raster.DatabaseURL == "" {
				add("raster.database_url is required for driver postgis")
			}
			if c.Raster.Table == "" {
				add("raster.table is required for driver postgis")
			}
			if c.Raster.FeaturesName == "" || c.Raster.MaskName == "" {
				add("raster.features_name and raster.mask_name are required for driver postgis")
			}
		default:
			add("raster.driver %q is not one of geotiff, postgis", c.Raster.Driver)
		}
		if c.Analysis.BufferKM <= 0 {
			add("analysis.buffer_km must be positive")
		}
		if err := c.Analysis.Policy().Validate(); err != nil {
			add("analysis reference policy: %v", err)
		}
	}

	if needModel && c.Model.Path == "" {
		add("model.path is required")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port %d is out of range", c.Server.Port)
		}
	case "batch":
		if c.Batch.MaxConcurrent <= 0 {
			add("batch.max_concurrent must be positive")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResultTTL is the retention of stored analysis results.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Store.ResultTTLSecs) * time.Second
}

// AnalysisTimeout bounds one analysis call.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSecs) * time.Second
}

// Backoff is the retry schedule for geocoder calls.
func (g GeocodeConfig) Backoff() resilience.Backoff {
	return resilience.BackoffFromConfig(g.RetryAttempts, g.RetryInitialMs, g.RetryMaxMs)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
