// Package config loads prcycle configuration.
// Precedence: environment (PRCYCLE_ prefix) > config file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. PRCYCLE_SERVER_PORT.
const EnvPrefix = "PRCYCLE"

// Config holds the complete application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Engine EngineConfig `mapstructure:"engine"`
	Data   DataConfig   `mapstructure:"data"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the HTTP workbench.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EngineConfig tunes rule evaluation.
type EngineConfig struct {
	// Workers bounds per-rule evaluation concurrency. 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers" validate:"min=0"`
	// TestLimit caps how many records a rule test evaluates.
	TestLimit     int `mapstructure:"test_limit" validate:"min=1"`
	CacheCapacity int `mapstructure:"cache_capacity" validate:"min=1"`
}

// DataConfig points at YAML files. Empty paths use the embedded sample data.
type DataConfig struct {
	SchemaFile    string `mapstructure:"schema_file" validate:"omitempty,file"`
	RulesFile     string `mapstructure:"rules_file" validate:"omitempty,file"`
	RecordsFile   string `mapstructure:"records_file" validate:"omitempty,file"`
	TemplatesFile string `mapstructure:"templates_file" validate:"omitempty,file"`
}

// LogConfig configures internal/logger.
type LogConfig struct {
	Level           string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal"`
	Format          string `mapstructure:"format" validate:"oneof=json text"`
	OTEL            bool   `mapstructure:"otel"`
	ServiceName     string `mapstructure:"service_name" validate:"required"`
	ErrorSampleRate int    `mapstructure:"error_sample_rate" validate:"min=1"`
}

var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "15s",
	"server.shutdown_timeout": "30s",
	"engine.workers":          0,
	"engine.test_limit":       50,
	"engine.cache_capacity":   1024,
	"data.schema_file":        "",
	"data.rules_file":         "",
	"data.records_file":       "",
	"data.templates_file":     "",
	"log.level":               "info",
	"log.format":              "json",
	"log.otel":                false,
	"log.service_name":        "prcycle",
	"log.error_sample_rate":   1,
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads configPath (if not empty) and the environment on top of the defaults.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	return &cfg, nil
}

// Validate checks struct tags with go-playground/validator.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// LogConfig logs the effective configuration.
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("addr", c.Server.Addr()),
		slog.Int("workers", c.Engine.Workers),
		slog.Int("test_limit", c.Engine.TestLimit),
		slog.Int("cache_capacity", c.Engine.CacheCapacity),
		slog.String("schema_file", orEmbedded(c.Data.SchemaFile)),
		slog.String("rules_file", orEmbedded(c.Data.RulesFile)),
		slog.String("records_file", orEmbedded(c.Data.RecordsFile)),
		slog.String("templates_file", orEmbedded(c.Data.TemplatesFile)),
		slog.String("log_level", c.Log.Level),
		slog.String("log_format", c.Log.Format),
		slog.Bool("otel", c.Log.OTEL),
	)
}

func orEmbedded(path string) string {
	if path == "" {
		return "(embedded)"
	}
	return path
}
