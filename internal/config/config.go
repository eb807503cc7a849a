// Package config loads applyflow configuration from the config file
// and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Orchestrator endpoints
	ServerURL string `yaml:"server_url"`
	WSURL     string `yaml:"ws_url"`

	// Bearer token for the REST API and the WebSocket handshake
	Token string `yaml:"token"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Connection behavior
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	UndoGrace      time.Duration `yaml:"undo_grace"`

	// Local cache database
	CachePath string `yaml:"cache_path"`
}

// fileConfig mirrors Config for YAML decoding with string durations.
type fileConfig struct {
	ServerURL      string `yaml:"server_url"`
	WSURL          string `yaml:"ws_url"`
	Token          string `yaml:"token"`
	LogFile        string `yaml:"log_file"`
	LogLevel       string `yaml:"log_level"`
	ReconnectDelay string `yaml:"reconnect_delay"`
	UndoGrace      string `yaml:"undo_grace"`
	CachePath      string `yaml:"cache_path"`
}

// Load reads configuration from the config file (if present), then
// applies environment variable overrides. Environment always wins.
func Load() (Config, error) {
	cfg := Config{
		ServerURL:      "http://localhost:8080",
		LogFile:        defaultLogFile(),
		LogLevel:       slog.LevelInfo,
		ReconnectDelay: 3 * time.Second,
		UndoGrace:      5 * time.Second,
		CachePath:      defaultCachePath(),
	}

	path := getEnv("APPLYFLOW_CONFIG", defaultConfigPath())
	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)

	if cfg.WSURL == "" {
		ws, err := DeriveWSURL(cfg.ServerURL)
		if err != nil {
			return Config{}, fmt.Errorf("derive websocket url: %w", err)
		}
		cfg.WSURL = ws
	}

	return cfg, nil
}

// DeriveWSURL converts the REST base URL into the orchestrator
// WebSocket endpoint.
func DeriveWSURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket url
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/ws/orchestrator"
	u.RawQuery = ""
	return u.String(), nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.WSURL != "" {
		cfg.WSURL = fc.WSURL
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = ParseLogLevel(fc.LogLevel)
	}
	if fc.ReconnectDelay != "" {
		if d, err := time.ParseDuration(fc.ReconnectDelay); err == nil {
			cfg.ReconnectDelay = d
		}
	}
	if fc.UndoGrace != "" {
		if d, err := time.ParseDuration(fc.UndoGrace); err == nil {
			cfg.UndoGrace = d
		}
	}
	if fc.CachePath != "" {
		cfg.CachePath = fc.CachePath
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerURL = getEnv("APPLYFLOW_SERVER_URL", cfg.ServerURL)
	cfg.WSURL = getEnv("APPLYFLOW_WS_URL", cfg.WSURL)
	cfg.Token = getEnv("APPLYFLOW_TOKEN", cfg.Token)
	cfg.LogFile = getEnv("APPLYFLOW_LOG_FILE", cfg.LogFile)
	if v := os.Getenv("APPLYFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv("APPLYFLOW_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReconnectDelay = d
		}
	}
	if v := os.Getenv("APPLYFLOW_UNDO_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.UndoGrace = d
		}
	}
	cfg.CachePath = getEnv("APPLYFLOW_CACHE_PATH", cfg.CachePath)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "applyflow", "config.yaml")
	}
	return ""
}

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "applyflow", "cache.db")
	}
	return filepath.Join(os.TempDir(), "applyflow-cache.db")
}

func defaultLogFile() string {
	return filepath.Join(os.TempDir(), "applyflow.log")
}
