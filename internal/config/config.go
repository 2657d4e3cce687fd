// Package config provides configuration management for wordstack.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvModelsDir    = "WORDSTACK_MODELS_DIR"
	EnvRegistryFile = "WORDSTACK_REGISTRY_FILE"
	EnvStack        = "WORDSTACK_STACK"
	EnvBatchSize    = "WORDSTACK_BATCH_SIZE"
	EnvPrecision    = "WORDSTACK_PRECISION"
	EnvLogLevel     = "WORDSTACK_LOG_LEVEL"
	EnvLogFormat    = "WORDSTACK_LOG_FORMAT"
	EnvMetricsAddr  = "WORDSTACK_METRICS_ADDR"
)

// Config holds all configuration for wordstack.
type Config struct {
	Models     ModelsConfig     `yaml:"models"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ModelsConfig configures where model files and custom registry entries live.
type ModelsConfig struct {
	Dir          string `yaml:"dir"`
	RegistryFile string `yaml:"registry_file"`
}

// EmbeddingsConfig configures the default provider stack.
type EmbeddingsConfig struct {
	Stack     []string `yaml:"stack"`
	BatchSize int      `yaml:"batch_size"`
	Precision string   `yaml:"precision"`
	Lowercase bool     `yaml:"lowercase"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Models: ModelsConfig{
			Dir: filepath.Join(homeDir, ".local", "share", "wordstack", "models"),
		},
		Embeddings: EmbeddingsConfig{
			Stack:     []string{"glove"},
			BatchSize: 32,
			Precision: "float32",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Models.Dir == "" {
		return errors.New("models.dir must be set")
	}
	if len(c.Embeddings.Stack) == 0 {
		return errors.New("embeddings.stack must name at least one model")
	}
	for _, id := range c.Embeddings.Stack {
		if strings.TrimSpace(id) == "" {
			return errors.New("embeddings.stack contains an empty identifier")
		}
	}
	if c.Embeddings.BatchSize < 1 {
		return errors.New("embeddings.batch_size must be at least 1")
	}
	if c.Embeddings.Precision != "float32" && c.Embeddings.Precision != "float16" {
		return errors.New("embeddings.precision must be 'float32' or 'float16'")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.New("logging.format must be 'text' or 'json'")
	}
	return nil
}

// Load loads configuration from the YAML file, falling back to defaults
// for any missing values. A .env file in the working directory or one of its
// parents is loaded first; WORDSTACK_* variables override the file.
func Load() (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		cfg := Default()
		return cfg, cfg.ApplyEnv() // Use defaults if we can't find config dir
	}
	return LoadFrom(configPath)
}

// LoadFrom loads configuration from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WORDSTACK_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvModelsDir); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv(EnvRegistryFile); v != "" {
		c.Models.RegistryFile = v
	}
	if v := os.Getenv(EnvStack); v != "" {
		var stack []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				stack = append(stack, id)
			}
		}
		c.Embeddings.Stack = stack
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchSize, err)
		}
		c.Embeddings.BatchSize = n
	}
	if v := os.Getenv(EnvPrecision); v != "" {
		c.Embeddings.Precision = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
	return nil
}

// LoadEnv loads a .env file, searching up the directory tree from the
// working directory. Variables already set are not overwritten.
func LoadEnv() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// Save writes the configuration to the YAML file.
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigDir returns the directory where config files are stored.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "wordstack"), nil
}

// ConfigPath returns the path to the main config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ModelsDir returns the models directory from config, creating it if needed.
func (c *Config) ModelsDir() (string, error) {
	if err := os.MkdirAll(c.Models.Dir, 0755); err != nil {
		return "", err
	}
	return c.Models.Dir, nil
}

// Logger builds a slog logger writing to w according to the logging section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", s)
}
