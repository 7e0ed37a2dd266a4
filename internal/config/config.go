package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Reasoning ReasoningConfig `yaml:"reasoning" mapstructure:"reasoning"`
	Risk      RiskConfig      `yaml:"risk" mapstructure:"risk"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	Path        string     `yaml:"path" mapstructure:"path"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig tunes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// ReasoningConfig controls how outbound reasoning calls are paced and cut off.
type ReasoningConfig struct {
	TimeoutSecs       int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	FailureThreshold  int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs  int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Timeout returns the per-call timeout.
func (r ReasoningConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// ResetTimeout returns how long the breaker stays open.
func (r ReasoningConfig) ResetTimeout() time.Duration {
	return time.Duration(r.ResetTimeoutSecs) * time.Second
}

// RiskConfig points at an optional standards table overriding the built-in one.
type RiskConfig struct {
	StandardsFile string `yaml:"standards_file" mapstructure:"standards_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Mode names a set of keys a command needs.
type Mode string

// Validation modes.
const (
	ModeStore     Mode = "store"
	ModeReasoning Mode = "reasoning"
	ModeServe     Mode = "serve"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GROUNDWATER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "groundwater.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("reasoning.timeout_secs", 60)
	v.SetDefault("reasoning.requests_per_minute", 30)
	v.SetDefault("reasoning.failure_threshold", 5)
	v.SetDefault("reasoning.reset_timeout_secs", 30)
	v.SetDefault("risk.standards_file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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

// Validate checks that the keys the given modes depend on are set and that
// numeric settings are in range.
func (c *Config) Validate(modes ...Mode) error {
	var errs []string
	for _, m := range modes {
		switch m {
		case ModeStore:
			switch c.Store.Driver {
			case "sqlite":
				if c.Store.Path == "" {
					errs = append(errs, "store.path is required")
				}
			case "postgres":
				if c.Store.DatabaseURL == "" {
					errs = append(errs, "store.database_url is required")
				}
			default:
				errs = append(errs, "store.driver must be sqlite or postgres")
			}
		case ModeReasoning:
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
			if c.Anthropic.Model == "" {
				errs = append(errs, "anthropic.model is required")
			}
		case ModeServe:
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				errs = append(errs, "server.port must be > 0 and <= 65535")
			}
		default:
			return eris.Errorf("config: unknown mode %q", m)
		}
	}

	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		errs = append(errs, "anthropic.temperature must be between 0 and 1")
	}
	if c.Reasoning.RequestsPerMinute < 0 {
		errs = append(errs, "reasoning.requests_per_minute must be >= 0")
	}
	if c.Reasoning.TimeoutSecs < 0 {
		errs = append(errs, "reasoning.timeout_secs must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
