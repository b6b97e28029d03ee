package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	RefData   RefDataConfig   `yaml:"refdata" mapstructure:"refdata"`
	Image     ImageConfig     `yaml:"image" mapstructure:"image"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings for the vision stages.
type AnthropicConfig struct {
	Key                string  `yaml:"key" mapstructure:"key"`
	Model              string  `yaml:"model" mapstructure:"model"`
	FallbackModel      string  `yaml:"fallback_model" mapstructure:"fallback_model"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RequestsPerMinute  float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// RefDataConfig points at the reference data pack.
type RefDataConfig struct {
	ChecksPath  string `yaml:"checks_path" mapstructure:"checks_path"`
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// ImageConfig bounds photo preprocessing.
type ImageConfig struct {
	MaxSourceMB     int `yaml:"max_source_mb" mapstructure:"max_source_mb"`
	TargetDimension int `yaml:"target_dimension" mapstructure:"target_dimension"`
}

// StoreConfig configures the run log database.
type StoreConfig struct {
	// Path is the SQLite database file; empty disables persistence.
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP assessment server.
type ServerConfig struct {
	Port        int `yaml:"port" mapstructure:"port"`
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
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
	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.timeout_secs", 300)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.fallback_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_attempts", 3)
	v.SetDefault("anthropic.request_timeout_secs", 60)
	v.SetDefault("anthropic.requests_per_minute", 50)
	v.SetDefault("refdata.checks_path", "data/vehicle_checks.json")
	v.SetDefault("refdata.catalog_path", "data/claim_actions.json")
	v.SetDefault("image.max_source_mb", 20)
	v.SetDefault("image.target_dimension", 1024)
	v.SetDefault("store.path", "claims.db")

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
