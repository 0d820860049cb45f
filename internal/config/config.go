// Package config loads fnord settings from config files and FNORD_*
// environment variables. Environment wins over the project file, which
// wins over the global file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in configuration.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the full runtime configuration.
type Config struct {
	Backend     string          `mapstructure:"backend" yaml:"backend"`
	DBPath      string          `mapstructure:"db_path" yaml:"db_path"`
	PostgresURL string          `mapstructure:"postgres_url" yaml:"postgres_url"`
	Embedding   EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	PageSize    int             `mapstructure:"page_size" yaml:"page_size"`
	WebAddr     string          `mapstructure:"web_addr" yaml:"web_addr"`
	LogLevel    string          `mapstructure:"log_level" yaml:"log_level"`
}

// EmbeddingConfig locates the external embedding endpoint.
type EmbeddingConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	Model     string `mapstructure:"model" yaml:"model"`
	Dimension int    `mapstructure:"dimension" yaml:"dimension"`
}

// Default returns the built-in defaults: embedded SQLite in the config
// directory, Ollama on localhost, 23 records per page.
func Default() *Config {
	return &Config{
		Backend: BackendSQLite,
		DBPath:  filepath.Join(Dir(), "fnord.db"),
		Embedding: EmbeddingConfig{
			URL:       "http://localhost:11434/api/embed",
			Model:     "nomic-embed-text",
			Dimension: 768,
		},
		PageSize: 23,
		WebAddr:  ":8000",
		LogLevel: "info",
	}
}

// Dir returns the fnord configuration directory (~/.config/fnord).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fnord"
	}
	return filepath.Join(home, ".config", "fnord")
}

// Load merges, in ascending priority: defaults, the global config file,
// ./fnord.yaml, and FNORD_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("postgres_url", cfg.PostgresURL)
	v.SetDefault("embedding.url", cfg.Embedding.URL)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("embedding.dimension", cfg.Embedding.Dimension)
	v.SetDefault("page_size", cfg.PageSize)
	v.SetDefault("web_addr", cfg.WebAddr)
	v.SetDefault("log_level", cfg.LogLevel)

	for _, path := range []string{filepath.Join(Dir(), "config.yaml"), "fnord.yaml"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("FNORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendPostgres)
	}
	if c.Backend == BackendPostgres && c.PostgresURL == "" {
		return fmt.Errorf("backend %s requires postgres_url (FNORD_POSTGRES_URL)", BackendPostgres)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.PageSize <= 0 {
		c.PageSize = 23
	}
	return nil
}

// WriteDefault writes a commented starter config to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	header := []byte("# fnord configuration. Every key can be overridden with a FNORD_* env var,\n# e.g. FNORD_BACKEND=postgres FNORD_EMBEDDING_DIMENSION=1024.\n")
	return os.WriteFile(path, append(header, out...), 0o644)
}
