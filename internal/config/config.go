// Package config loads and validates the barbersync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIURL is the base URL of the booking REST API
	// (e.g. "https://api.001barbershop.uz/api").
	APIURL string `yaml:"api_url"`

	// PushURL is the WebSocket endpoint of the booking event channel
	// (e.g. "wss://api.001barbershop.uz/events"). Derived from APIURL when
	// unset.
	PushURL string `yaml:"push_url"`

	// Token is the admin access token used for the REST API and the push
	// channel. May be empty: booking data still loads via polling, but
	// live updates require credentials.
	Token string `yaml:"token"`

	// PollInterval controls the fallback refresh period when the push
	// channel is unavailable. Minimum 1s, maximum 5m. Defaults to 5s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ConnectTimeout bounds each push channel handshake. Defaults to 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// FailureThreshold is the number of consecutive push failures before
	// falling back to polling. Between 1 and 10. Defaults to 3.
	FailureThreshold int `yaml:"failure_threshold"`

	// CachePath overrides the snapshot cache location. Empty uses the
	// default under ~/.local/share/barbersync. Set to "off" to disable
	// snapshot persistence.
	CachePath string `yaml:"cache_path,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "barbersync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/barbersync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "barbersync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path. The
// BARBERSYNC_TOKEN environment variable overrides the token field so the
// credential can stay out of the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if envTok := os.Getenv("BARBERSYNC_TOKEN"); envTok != "" {
		cfg.Token = envTok
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required fields are present and well-formed, and
// applies defaults.
func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_url %q must be a valid http or https URL", c.APIURL)
	}

	if c.PushURL == "" {
		c.PushURL = derivePushURL(u)
	}
	pu, err := url.ParseRequestURI(c.PushURL)
	if err != nil || (pu.Scheme != "ws" && pu.Scheme != "wss") {
		return fmt.Errorf("push_url %q must be a valid ws or wss URL", c.PushURL)
	}

	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll_interval %v is too short (minimum 1s)", c.PollInterval)
	}
	if c.PollInterval > 5*time.Minute {
		return fmt.Errorf("poll_interval %v is too long (maximum 5m)", c.PollInterval)
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConnectTimeout < time.Second {
		return fmt.Errorf("connect_timeout %v is too short (minimum 1s)", c.ConnectTimeout)
	}

	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.FailureThreshold < 1 || c.FailureThreshold > 10 {
		return fmt.Errorf("failure_threshold %d must be between 1 and 10", c.FailureThreshold)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

// derivePushURL maps the REST base URL to the backend's WebSocket endpoint:
// same host, ws(s) scheme, /events path.
func derivePushURL(api *url.URL) string {
	scheme := "ws"
	if api.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + api.Host + "/events"
}
