package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete frame-monitor configuration
type Config struct {
	StreamID         string        `yaml:"stream_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	StatsIntervalS   int           `yaml:"stats_interval_s"`   // Seconds between cadence summaries (0 = off)
	Log              LogConfig     `yaml:"log"`
	Monitor          MonitorConfig `yaml:"monitor"`
	Source           SourceConfig  `yaml:"source"`
	Console          ConsoleConfig `yaml:"console"`
	Metrics          MetricsConfig `yaml:"metrics"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
}

// LogConfig contains slog settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MonitorConfig contains cadence monitor settings
type MonitorConfig struct {
	Verbosity string  `yaml:"verbosity"` // on_anomaly, always_show
	MaxGap    *uint64 `yaml:"max_gap"`   // largest forward jump reported as missing frames (0 = unbounded)
}

// SourceConfig selects and configures the acquisition layer
type SourceConfig struct {
	Type      string          `yaml:"type"` // mock, gstreamer
	Mock      MockConfig      `yaml:"mock"`
	GStreamer GStreamerConfig `yaml:"gstreamer"`
}

// MockConfig configures the synthetic source
type MockConfig struct {
	FPS            float64 `yaml:"fps"`
	Width          uint32  `yaml:"width"`
	Height         uint32  `yaml:"height"`
	PixelFormat    string  `yaml:"pixel_format"` // hex PFNC code or GStreamer name
	Buffers        int     `yaml:"buffers"`      // acquisition queue depth
	DropRate       float64 `yaml:"drop_rate"`
	IncompleteRate float64 `yaml:"incomplete_rate"`
	UnreadableRate float64 `yaml:"unreadable_rate"`
	Seed           int64   `yaml:"seed"`
}

// GStreamerConfig configures the appsink source
type GStreamerConfig struct {
	Pipeline    string `yaml:"pipeline"`     // gst-launch style description ending in an appsink
	SinkName    string `yaml:"sink_name"`    // name of the appsink element
	MaxRestarts int    `yaml:"max_restarts"` // pipeline restarts before giving up
}

// ConsoleConfig toggles the dot/line console view
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig contains Prometheus endpoint settings
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
	Path   string `yaml:"path"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port, empty disables publishing
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Encoding string `yaml:"encoding"` // json, msgpack
}

// Default returns a configuration that runs the mock source with console
// output and no network endpoints.
func Default() *Config {
	cfg := &Config{
		StreamID: "camera-1",
		Console:  ConsoleConfig{Enabled: true},
	}
	// Validate only fills defaults here, it cannot fail
	_ = Validate(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes and validates them
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Console: ConsoleConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
