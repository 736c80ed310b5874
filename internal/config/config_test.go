package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.001barbershop.uz/api"
push_url: "wss://api.001barbershop.uz/events"
token: "abc123"
poll_interval: 8s
connect_timeout: 15s
failure_threshold: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != "https://api.001barbershop.uz/api" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.PushURL != "wss://api.001barbershop.uz/events" {
		t.Errorf("PushURL = %q", cfg.PushURL)
	}
	if cfg.Token != "abc123" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.PollInterval != 8*time.Second {
		t.Errorf("PollInterval = %v, want 8s", cfg.PollInterval)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %v, want 15s", cfg.ConnectTimeout)
	}
	if cfg.FailureThreshold != 2 {
		t.Errorf("FailureThreshold = %d, want 2", cfg.FailureThreshold)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.example.com/api"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want default 5s", cfg.PollInterval)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want default 10s", cfg.ConnectTimeout)
	}
	if cfg.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %d, want default 3", cfg.FailureThreshold)
	}
}

func TestLoad_DerivesPushURL(t *testing.T) {
	tests := []struct {
		api  string
		want string
	}{
		{"https://api.example.com/api", "wss://api.example.com/events"},
		{"http://localhost:8080/api", "ws://localhost:8080/events"},
	}
	for _, tt := range tests {
		path := writeConfig(t, "api_url: \""+tt.api+"\"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.PushURL != tt.want {
			t.Errorf("PushURL for %q = %q, want %q", tt.api, cfg.PushURL, tt.want)
		}
	}
}

func TestLoad_TokenEnvOverride(t *testing.T) {
	t.Setenv("BARBERSYNC_TOKEN", "env-token")
	path := writeConfig(t, `
api_url: "https://api.example.com/api"
token: "file-token"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want the environment override", cfg.Token)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing api_url",
			content: `poll_interval: 5s`,
			wantErr: "api_url is required",
		},
		{
			name:    "bad api_url scheme",
			content: `api_url: "ftp://example.com"`,
			wantErr: "must be a valid http or https URL",
		},
		{
			name: "bad push_url scheme",
			content: `
api_url: "https://api.example.com/api"
push_url: "https://api.example.com/events"
`,
			wantErr: "must be a valid ws or wss URL",
		},
		{
			name: "poll interval too short",
			content: `
api_url: "https://api.example.com/api"
poll_interval: 200ms
`,
			wantErr: "too short",
		},
		{
			name: "poll interval too long",
			content: `
api_url: "https://api.example.com/api"
poll_interval: 10m
`,
			wantErr: "too long",
		},
		{
			name: "failure threshold out of range",
			content: `
api_url: "https://api.example.com/api"
failure_threshold: 11
`,
			wantErr: "between 1 and 10",
		},
		{
			name: "telemetry without endpoint",
			content: `
api_url: "https://api.example.com/api"
telemetry:
  insecure: true
`,
			wantErr: "otlp_endpoint is required",
		},
		{
			name: "unknown key",
			content: `
api_url: "https://api.example.com/api"
pol_interval: 5s
`,
			wantErr: "field pol_interval not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
