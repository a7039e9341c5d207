package config

import (
	"fmt"
	"regexp"
	"strings"

	framemonitor "github.com/qazerd/frame-monitor"
)

var streamIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Source types
const (
	SourceMock      = "mock"
	SourceGStreamer = "gstreamer"
)

// Payload encodings
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

const defaultPipeline = "videotestsrc is-live=true ! video/x-raw,format=GRAY8,width=640,height=480,framerate=30/1 ! appsink name=sink"

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate stream_id
	if cfg.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	if !streamIDPattern.MatchString(cfg.StreamID) {
		return fmt.Errorf("stream_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.StatsIntervalS < 0 {
		return fmt.Errorf("stats_interval_s must be >= 0")
	}

	if err := validateLog(&cfg.Log); err != nil {
		return err
	}

	// Validate monitor config
	if _, err := framemonitor.ParseVerbosity(cfg.Monitor.Verbosity); err != nil {
		return fmt.Errorf("monitor.verbosity: %w", err)
	}
	if cfg.Monitor.Verbosity == "" {
		cfg.Monitor.Verbosity = framemonitor.VerbosityOnAnomaly.String()
	}
	if cfg.Monitor.MaxGap == nil {
		maxGap := framemonitor.DefaultMaxGap
		cfg.Monitor.MaxGap = &maxGap
	}

	if err := validateSource(&cfg.Source); err != nil {
		return fmt.Errorf("source validation failed: %w", err)
	}

	if cfg.Metrics.Listen != "" && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// MQTT is optional; defaults only apply when a broker is set
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "frame-monitor-" + cfg.StreamID
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("frame-monitor/%s", cfg.StreamID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		switch cfg.MQTT.Encoding {
		case "":
			cfg.MQTT.Encoding = EncodingJSON
		case EncodingJSON, EncodingMsgpack:
		default:
			return fmt.Errorf("mqtt.encoding must be 'json' or 'msgpack', got '%s'", cfg.MQTT.Encoding)
		}
	}

	return nil
}

func validateLog(l *LogConfig) error {
	l.Level = strings.ToLower(l.Level)
	switch l.Level {
	case "":
		l.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got '%s'", l.Level)
	}

	switch l.Format {
	case "":
		l.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got '%s'", l.Format)
	}
	return nil
}

// validateSource validates the acquisition layer configuration
func validateSource(src *SourceConfig) error {
	if src.Type == "" {
		src.Type = SourceMock
	}

	switch src.Type {
	case SourceMock:
		m := &src.Mock
		if m.FPS == 0 {
			m.FPS = 30
		}
		if m.FPS < 0.1 || m.FPS > 1000 {
			return fmt.Errorf("mock.fps must be between 0.1 and 1000, got %.2f", m.FPS)
		}
		if m.Width == 0 {
			m.Width = 640
		}
		if m.Height == 0 {
			m.Height = 480
		}
		if m.PixelFormat == "" {
			m.PixelFormat = framemonitor.PixelFormatMono8.String()
		}
		if _, err := framemonitor.ParsePixelFormat(m.PixelFormat); err != nil {
			return fmt.Errorf("mock.pixel_format: %w", err)
		}
		if m.Buffers <= 0 {
			m.Buffers = 4
		}
		for name, rate := range map[string]float64{
			"drop_rate":       m.DropRate,
			"incomplete_rate": m.IncompleteRate,
			"unreadable_rate": m.UnreadableRate,
		} {
			if rate < 0 || rate > 1 {
				return fmt.Errorf("mock.%s must be between 0 and 1, got %v", name, rate)
			}
		}
		if m.Seed == 0 {
			m.Seed = 1
		}

	case SourceGStreamer:
		g := &src.GStreamer
		if g.Pipeline == "" {
			g.Pipeline = defaultPipeline
		}
		if g.SinkName == "" {
			g.SinkName = "sink"
		}
		if !strings.Contains(g.Pipeline, "appsink") {
			return fmt.Errorf("gstreamer.pipeline must end in an appsink element")
		}
		if g.MaxRestarts <= 0 {
			g.MaxRestarts = 5
		}

	default:
		return fmt.Errorf("unknown source type '%s' (must be 'mock' or 'gstreamer')", src.Type)
	}

	return nil
}
