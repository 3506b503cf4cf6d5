// Package config loads kvstore settings from kvstore.toml and KVSTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/motti-landau/kvstore/record"
)

const (
	appDir        = ".kvstore"
	namespacesDir = "namespaces"
	recentLogName = "recent.log"
)

type Config struct {
	Namespace  string `mapstructure:"namespace"`
	Home       string `mapstructure:"home"` // storage root; default ~/.kvstore
	DataFile   string `mapstructure:"data_file"`
	RecentFile string `mapstructure:"recent_file"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	Backend BackendConfig `mapstructure:"backend"`
	Logging LoggingConfig `mapstructure:"logging"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
	Search  SearchConfig  `mapstructure:"search"`
}

type BackendConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite | file | redis | memory
	Codec  string      `mapstructure:"codec"`  // payload codec for file/redis/memory
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// SharedVersion keeps the snapshot version in Redis so several processes agree on it.
	SharedVersion bool `mapstructure:"shared_version"`
}

type LoggingConfig struct {
	Driver string `mapstructure:"driver"` // zap | logrus | slog
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
}

type HistoryConfig struct {
	File  string `mapstructure:"file"`
	Limit int    `mapstructure:"limit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type SearchConfig struct {
	Limit        int   `mapstructure:"limit"`
	CacheEntries int64 `mapstructure:"cache_entries"` // 0 disables the memo
}

// Options are command-line overrides; empty fields are ignored.
type Options struct {
	ConfigFile string
	Namespace  string
	DataFile   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("namespace", "default")
	v.SetDefault("home", "")
	v.SetDefault("data_file", "")
	v.SetDefault("recent_file", "")
	v.SetDefault("sweep_interval", time.Hour)

	v.SetDefault("backend.driver", "sqlite")
	v.SetDefault("backend.codec", "msgpack")
	v.SetDefault("backend.redis.addr", "127.0.0.1:6379")
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.shared_version", true)

	v.SetDefault("logging.driver", "zap")
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.file", "")

	v.SetDefault("history.file", "")
	v.SetDefault("history.limit", 25)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7878)

	v.SetDefault("search.limit", 10)
	v.SetDefault("search.cache_entries", 1024)
}

// Load reads kvstore.toml from the working directory or ./config (or
// opts.ConfigFile), applies KVSTORE_* environment variables and then opts.
// A missing default config file is not an error; a missing explicit one is.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("KVSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("kvstore")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: reading settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}

	if ns := strings.TrimSpace(opts.Namespace); ns != "" {
		cfg.Namespace = ns
	}
	if opts.DataFile != "" {
		cfg.DataFile = opts.DataFile
	}
	cfg.Namespace = strings.TrimSpace(cfg.Namespace)
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := record.ValidateNamespace(c.Namespace); err != nil {
		return err
	}
	switch c.Backend.Driver {
	case "sqlite", "file", "redis", "memory":
	default:
		return &record.Invalid{Field: "backend.driver", Reason: fmt.Sprintf("unknown driver %q", c.Backend.Driver)}
	}
	switch c.Logging.Driver {
	case "zap", "logrus", "slog":
	default:
		return &record.Invalid{Field: "logging.driver", Reason: fmt.Sprintf("unknown driver %q", c.Logging.Driver)}
	}
	if c.History.Limit < 0 {
		return &record.Invalid{Field: "history.limit", Reason: "cannot be negative"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &record.Invalid{Field: "server.port", Reason: "out of range"}
	}
	return nil
}

// StorageRoot returns Home, or ~/.kvstore.
func (c *Config) StorageRoot() string {
	if c.Home != "" {
		return c.Home
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, appDir)
	}
	return appDir
}

// NamespaceDir is <root>/namespaces/<namespace>.
func (c *Config) NamespaceDir() string {
	return filepath.Join(c.StorageRoot(), namespacesDir, c.Namespace)
}

// DataPath is where the file-based backends keep the namespace.
func (c *Config) DataPath() string {
	if c.DataFile != "" {
		return c.DataFile
	}
	name := "data.db"
	if c.Backend.Driver == "file" {
		name = "data.kv"
	}
	return filepath.Join(c.NamespaceDir(), name)
}

// RecentPath resolves history.file, then recent_file, then <namespace dir>/logs/recent.log.
func (c *Config) RecentPath() string {
	switch {
	case c.History.File != "":
		return c.History.File
	case c.RecentFile != "":
		return c.RecentFile
	default:
		return filepath.Join(c.NamespaceDir(), "logs", recentLogName)
	}
}

// Addr is the server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
