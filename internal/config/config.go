package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the single-stream endpoint; stream names are appended verbatim.
	DefaultBaseURL = "wss://stream.binance.com:9443/ws/"
	// DefaultMultiBaseURL is the combined-stream endpoint; names are joined with "/".
	DefaultMultiBaseURL = "wss://stream.binance.com:9443/stream?streams="
)

// Duration wraps time.Duration to support YAML unmarshalling from either a
// string (e.g. "30s") or a raw number representing seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		if parsed, err := time.ParseDuration(raw); err == nil {
			d.Duration = parsed
			return nil
		}
		// Fallback: treat as seconds
		var seconds float64
		if err := value.Decode(&seconds); err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", raw, err)
		}
		d.Duration = time.Duration(seconds * float64(time.Second))
		return nil
	default:
		return fmt.Errorf("config: unsupported YAML node for duration: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// OrDefault returns the duration or a fallback when zero.
func (d Duration) OrDefault(fallback time.Duration) time.Duration {
	if d.Duration == 0 {
		return fallback
	}
	return d.Duration
}

// Config is the root configuration schema for the stream client.
type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Sinks     SinkConfig      `yaml:"sinks"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StreamConfig covers the Binance endpoints, the subscribed streams and the
// websocket transport.
type StreamConfig struct {
	BaseURL           string   `yaml:"baseUrl"`
	MultiBaseURL      string   `yaml:"multiBaseUrl"`
	Streams           []string `yaml:"streams"`
	Multiplex         bool     `yaml:"multiplex"`
	HandshakeTimeout  Duration `yaml:"handshakeTimeout"`
	PingInterval      Duration `yaml:"pingInterval"`
	ReadBufferBytes   int      `yaml:"readBufferBytes"`
	WriteBufferBytes  int      `yaml:"writeBufferBytes"`
	MaxMessagesPerSec int      `yaml:"maxMessagesPerSec"`
}

// UseMultiplex reports whether the combined endpoint should be dialled.
func (s StreamConfig) UseMultiplex() bool {
	return s.Multiplex || len(s.Streams) > 1
}

// ReconnectConfig governs the supervisor restarting dispatcher sessions.
type ReconnectConfig struct {
	Enable  bool          `yaml:"enable"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig describes an exponential backoff schedule.
type BackoffConfig struct {
	Initial    Duration `yaml:"initial"`
	Max        Duration `yaml:"max"`
	Multiplier float64  `yaml:"multiplier"`
	Jitter     float64  `yaml:"jitter"`
}

// SinkConfig holds the destinations decoded events are forwarded to.
type SinkConfig struct {
	Console    bool          `yaml:"console"`
	Table      bool          `yaml:"table"`
	Webhooks   []string      `yaml:"webhooks"`
	BufferSize int           `yaml:"bufferSize"`
	Workers    int           `yaml:"workers"`
	Timeout    Duration      `yaml:"timeout"`
	Retry      BackoffConfig `yaml:"retry"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// LoggingConfig toggles logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Human bool   `yaml:"human"`
}

// Load reads configuration from YAML file and applies defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Return defaults when the file is absent so the binary can start
			// with CLI-provided overrides only.
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Sinks: SinkConfig{
			Console: true,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-values with defaults where a YAML override has not
// been provided.
func (c *Config) applyDefaults() {
	if c.Stream.BaseURL == "" {
		c.Stream.BaseURL = DefaultBaseURL
	}
	if c.Stream.MultiBaseURL == "" {
		c.Stream.MultiBaseURL = DefaultMultiBaseURL
	}
	if c.Stream.HandshakeTimeout.Duration == 0 {
		c.Stream.HandshakeTimeout = Duration{Duration: 15 * time.Second}
	}
	if c.Stream.PingInterval.Duration == 0 {
		c.Stream.PingInterval = Duration{Duration: time.Minute}
	}
	if c.Stream.ReadBufferBytes == 0 {
		c.Stream.ReadBufferBytes = 32 * 1024
	}
	if c.Stream.WriteBufferBytes == 0 {
		c.Stream.WriteBufferBytes = 4 * 1024
	}
	// Binance disconnects clients sending more than 5 messages per second.
	if c.Stream.MaxMessagesPerSec == 0 {
		c.Stream.MaxMessagesPerSec = 5
	}

	if c.Reconnect.Backoff.Initial.Duration == 0 {
		c.Reconnect.Backoff.Initial = Duration{Duration: time.Second}
	}
	if c.Reconnect.Backoff.Max.Duration == 0 {
		c.Reconnect.Backoff.Max = Duration{Duration: 30 * time.Second}
	}
	if c.Reconnect.Backoff.Multiplier == 0 {
		c.Reconnect.Backoff.Multiplier = 2.0
	}
	if c.Reconnect.Backoff.Jitter == 0 {
		c.Reconnect.Backoff.Jitter = 0.2
	}

	if c.Sinks.BufferSize == 0 {
		c.Sinks.BufferSize = 1024
	}
	if c.Sinks.Workers == 0 {
		c.Sinks.Workers = 2
	}
	if c.Sinks.Timeout.Duration == 0 {
		c.Sinks.Timeout = Duration{Duration: 5 * time.Second}
	}
	if c.Sinks.Retry.Initial.Duration == 0 {
		c.Sinks.Retry.Initial = Duration{Duration: time.Second}
	}
	if c.Sinks.Retry.Max.Duration == 0 {
		c.Sinks.Retry.Max = Duration{Duration: 15 * time.Second}
	}
	if c.Sinks.Retry.Multiplier == 0 {
		c.Sinks.Retry.Multiplier = 2.0
	}
	if c.Sinks.Retry.Jitter == 0 {
		c.Sinks.Retry.Jitter = 0.2
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9100"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate ensures required configuration is present. Stream names are only
// checked for emptiness; the exchange decides whether a name is meaningful.
func (c *Config) Validate() error {
	for _, raw := range []string{c.Stream.BaseURL, c.Stream.MultiBaseURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("config: invalid stream url %q: %w", raw, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("config: stream url %q must use ws or wss", raw)
		}
	}
	for i, name := range c.Stream.Streams {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config: stream %d is empty", i)
		}
	}
	if c.Stream.MaxMessagesPerSec <= 0 {
		return errors.New("config: maxMessagesPerSec must be > 0")
	}
	if c.Stream.PingInterval.Duration < 0 {
		return errors.New("config: pingInterval must be >= 0")
	}
	if c.Reconnect.Backoff.Multiplier < 1 {
		return errors.New("config: reconnect multiplier must be >= 1")
	}
	if c.Reconnect.Backoff.Jitter < 0 || c.Reconnect.Backoff.Jitter > 1 {
		return errors.New("config: reconnect jitter must be within [0, 1]")
	}
	if c.Sinks.BufferSize <= 0 {
		return errors.New("config: sink bufferSize must be > 0")
	}
	if c.Sinks.Workers <= 0 {
		return errors.New("config: sink workers must be > 0")
	}
	for i, hook := range c.Sinks.Webhooks {
		u, err := url.Parse(hook)
		if err != nil || u.Host == "" {
			return fmt.Errorf("config: invalid webhook %d: %q", i, hook)
		}
	}
	return nil
}
