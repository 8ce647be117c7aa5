// Package config resolves runtime settings from defaults, an optional
// config file, and RECALL_* environment overrides. Flags are applied on top
// by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Index    IndexConfig    `mapstructure:"index"`
	Search   SearchConfig   `mapstructure:"search"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	LogLevel string         `mapstructure:"log_level"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // sqlite | postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type EmbedderConfig struct {
	Provider  string `mapstructure:"provider"` // openai | ollama | deterministic
	Model     string `mapstructure:"model"`
	Dims      int    `mapstructure:"dims"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	CacheSize int64  `mapstructure:"cache_size"`
}

type IndexConfig struct {
	Kind           string  `mapstructure:"kind"` // auto | flat | hnsw
	Threshold      int     `mapstructure:"threshold"`
	TargetAccuracy float64 `mapstructure:"target_accuracy"`
	M              int     `mapstructure:"m"`
	EfConstruction int     `mapstructure:"ef_construction"`
}

type SearchConfig struct {
	K      int    `mapstructure:"k"`
	Metric string `mapstructure:"metric"`
}

// Load reads configuration. With an explicit cfgFile the file must exist;
// otherwise $HOME/.recall/config.yml is used when present and defaults
// apply when not.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".recall"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", filepath.Join(home, ".recall", "recall.db"))
	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("embedder.provider", "openai")
	v.SetDefault("embedder.model", "")
	v.SetDefault("embedder.dims", 0)
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.api_key", os.Getenv("OPENAI_API_KEY"))
	v.SetDefault("embedder.cache_size", int64(64<<20))

	v.SetDefault("index.kind", "auto")
	v.SetDefault("index.threshold", 4096)
	v.SetDefault("index.target_accuracy", 0.95)
	v.SetDefault("index.m", 0)
	v.SetDefault("index.ef_construction", 0)

	v.SetDefault("search.k", 5)
	v.SetDefault("search.metric", "cosine")

	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
}
