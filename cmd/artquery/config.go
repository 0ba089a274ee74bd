package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the artquery configuration file.
type Config struct {
	BaseURL   string
	UserAgent string

	Delay       time.Duration
	SuccessRate float64

	StaleTime time.Duration
	Retention string
	MaxSize   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Channel       string

	Log   string
	Debug bool
}

const (
	defaultConfigPath  = "~/.config/artquery/config.toml"
	defaultRetention   = "map"
	defaultLog         = "console"
	defaultChannel     = "artquery:invalidate"
	defaultStaleTime   = time.Hour
	defaultMaxSize     = 1000
	defaultSuccessRate = 1.0
)

var retentionKinds = []string{"map", "lru", "lfu"}

var logKinds = []string{"none", "console", "glog"}

func defaultConfig() Config {
	return Config{
		SuccessRate: defaultSuccessRate,
		StaleTime:   defaultStaleTime,
		Retention:   defaultRetention,
		MaxSize:     defaultMaxSize,
		Channel:     defaultChannel,
		Log:         defaultLog,
	}
}

// LoadConfig reads the config file at path, falling back to defaults when
// it does not exist. An empty path means the default location.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		API struct {
			BaseURL   string `toml:"base_url"`
			UserAgent string `toml:"user_agent"`
		} `toml:"api"`
		Network struct {
			Delay       string   `toml:"delay"`
			SuccessRate *float64 `toml:"success_rate"`
		} `toml:"network"`
		Cache struct {
			StaleTime string `toml:"stale_time"`
			Retention string `toml:"retention"`
			MaxSize   int    `toml:"max_size"`
		} `toml:"cache"`
		Redis struct {
			Addr     string `toml:"addr"`
			Password string `toml:"password"`
			DB       int    `toml:"db"`
			Channel  string `toml:"channel"`
		} `toml:"redis"`
		Log   string `toml:"log"`
		Debug bool   `toml:"debug"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(raw.API.BaseURL)
	cfg.UserAgent = strings.TrimSpace(raw.API.UserAgent)

	if d := strings.TrimSpace(raw.Network.Delay); d != "" {
		if cfg.Delay, err = time.ParseDuration(d); err != nil {
			return Config{}, fmt.Errorf("parse config: network.delay: %w", err)
		}
	}
	if raw.Network.SuccessRate != nil {
		cfg.SuccessRate = *raw.Network.SuccessRate
	}

	if d := strings.TrimSpace(raw.Cache.StaleTime); d != "" {
		if cfg.StaleTime, err = time.ParseDuration(d); err != nil {
			return Config{}, fmt.Errorf("parse config: cache.stale_time: %w", err)
		}
	}
	if r := strings.ToLower(strings.TrimSpace(raw.Cache.Retention)); r != "" {
		cfg.Retention = r
	}
	if raw.Cache.MaxSize > 0 {
		cfg.MaxSize = raw.Cache.MaxSize
	}

	cfg.RedisAddr = strings.TrimSpace(raw.Redis.Addr)
	cfg.RedisPassword = raw.Redis.Password
	cfg.RedisDB = raw.Redis.DB
	if ch := strings.TrimSpace(raw.Redis.Channel); ch != "" {
		cfg.Channel = ch
	}

	if l := strings.ToLower(strings.TrimSpace(raw.Log)); l != "" {
		cfg.Log = l
	}
	cfg.Debug = raw.Debug

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values a file or flags can get wrong.
func (c Config) Validate() error {
	if !slices.Contains(retentionKinds, c.Retention) {
		return fmt.Errorf("config: retention must be one of %s, got %q", strings.Join(retentionKinds, ", "), c.Retention)
	}
	if !slices.Contains(logKinds, c.Log) {
		return fmt.Errorf("config: log must be one of %s, got %q", strings.Join(logKinds, ", "), c.Log)
	}
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return fmt.Errorf("config: success_rate must be within [0, 1], got %v", c.SuccessRate)
	}
	if c.Delay < 0 || c.StaleTime < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
