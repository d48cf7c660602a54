// Package config resolves server settings from defaults, an optional YAML
// file, TASKBOARD_* environment variables and command line flags, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskboard/internal/util"
)

// Redis configures the cross-instance change feed.
type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Config holds every runtime setting of the server.
type Config struct {
	Addr             string        `yaml:"addr"`
	DBPath           string        `yaml:"db_path"`
	StaticDir        string        `yaml:"static_dir"`
	LogLevel         string        `yaml:"log_level"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	BoardIdleTimeout time.Duration `yaml:"board_idle_timeout"`
	Redis            Redis         `yaml:"redis"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Addr:             ":8080",
		DBPath:           "data/taskboard.db",
		StaticDir:        "web/dist",
		LogLevel:         "info",
		ShutdownTimeout:  5 * time.Second,
		BoardIdleTimeout: 10 * time.Minute,
		Redis: Redis{
			Addr:    "localhost:6379",
			Channel: "taskboard:changes",
		},
	}
}

// Load reads the YAML file at path (skipped when empty) over the defaults
// and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Addr = util.EnvOrDefault("TASKBOARD_ADDR", c.Addr)
	c.DBPath = util.EnvOrDefault("TASKBOARD_DB_PATH", c.DBPath)
	c.StaticDir = util.EnvOrDefault("TASKBOARD_STATIC_DIR", c.StaticDir)
	c.LogLevel = util.EnvOrDefault("TASKBOARD_LOG_LEVEL", c.LogLevel)
	c.ShutdownTimeout = util.EnvDurationOrDefault("TASKBOARD_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.BoardIdleTimeout = util.EnvDurationOrDefault("TASKBOARD_BOARD_IDLE_TIMEOUT", c.BoardIdleTimeout)
	c.Redis.Enabled = util.EnvBoolOrDefault("TASKBOARD_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = util.EnvOrDefault("TASKBOARD_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = util.EnvOrDefault("TASKBOARD_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Channel = util.EnvOrDefault("TASKBOARD_REDIS_CHANNEL", c.Redis.Channel)
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if c.BoardIdleTimeout <= 0 {
		return fmt.Errorf("board_idle_timeout must be positive")
	}
	if c.Redis.Enabled && (c.Redis.Addr == "" || c.Redis.Channel == "") {
		return fmt.Errorf("redis.addr and redis.channel are required when redis is enabled")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log level name to slog.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
}
