package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setTestConfig writes a config file and points APPLYFLOW_CONFIG at it.
func setTestConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APPLYFLOW_CONFIG", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APPLYFLOW_CONFIG", filepath.Join(t.TempDir(), "nonexistent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.WSURL != "ws://localhost:8080/api/ws/orchestrator" {
		t.Errorf("WSURL = %q, want derived default", cfg.WSURL)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.ReconnectDelay)
	}
	if cfg.UndoGrace != 5*time.Second {
		t.Errorf("UndoGrace = %v, want 5s", cfg.UndoGrace)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	setTestConfig(t, `
server_url: https://applyflow.example
token: file-token
log_level: debug
reconnect_delay: 10s
undo_grace: 8s
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerURL != "https://applyflow.example" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.WSURL != "wss://applyflow.example/api/ws/orchestrator" {
		t.Errorf("WSURL = %q, want wss derived from https", cfg.WSURL)
	}
	if cfg.Token != "file-token" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.ReconnectDelay != 10*time.Second {
		t.Errorf("ReconnectDelay = %v, want 10s", cfg.ReconnectDelay)
	}
	if cfg.UndoGrace != 8*time.Second {
		t.Errorf("UndoGrace = %v, want 8s", cfg.UndoGrace)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	setTestConfig(t, `
server_url: https://from-file.example
token: file-token
`)
	t.Setenv("APPLYFLOW_SERVER_URL", "https://from-env.example")
	t.Setenv("APPLYFLOW_TOKEN", "env-token")
	t.Setenv("APPLYFLOW_RECONNECT_DELAY", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerURL != "https://from-env.example" {
		t.Errorf("ServerURL = %q, env must win", cfg.ServerURL)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, env must win", cfg.Token)
	}
	if cfg.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 500ms", cfg.ReconnectDelay)
	}
}

func TestExplicitWSURLWins(t *testing.T) {
	t.Setenv("APPLYFLOW_CONFIG", filepath.Join(t.TempDir(), "nonexistent.yaml"))
	t.Setenv("APPLYFLOW_WS_URL", "wss://other.example/ws")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WSURL != "wss://other.example/ws" {
		t.Errorf("WSURL = %q, explicit value must not be re-derived", cfg.WSURL)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	setTestConfig(t, "{{ not yaml")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for malformed config file")
	}
}

func TestDeriveWSURL(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		want      string
		wantErr   bool
	}{
		{
			name:      "http to ws",
			serverURL: "http://localhost:8080",
			want:      "ws://localhost:8080/api/ws/orchestrator",
		},
		{
			name:      "https to wss",
			serverURL: "https://applyflow.example",
			want:      "wss://applyflow.example/api/ws/orchestrator",
		},
		{
			name:      "existing path replaced",
			serverURL: "https://applyflow.example/api",
			want:      "wss://applyflow.example/api/ws/orchestrator",
		},
		{
			name:      "ws scheme kept",
			serverURL: "ws://localhost:8080",
			want:      "ws://localhost:8080/api/ws/orchestrator",
		},
		{
			name:      "unsupported scheme",
			serverURL: "ftp://example.com",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveWSURL(tt.serverURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DeriveWSURL(%q) expected error", tt.serverURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeriveWSURL(%q) error = %v", tt.serverURL, err)
			}
			if got != tt.want {
				t.Errorf("DeriveWSURL(%q) = %q, want %q", tt.serverURL, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
