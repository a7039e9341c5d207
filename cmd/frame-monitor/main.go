package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	framemonitor "github.com/qazerd/frame-monitor"
	"github.com/qazerd/frame-monitor/internal/config"
	"github.com/qazerd/frame-monitor/internal/emitter"
	"github.com/qazerd/frame-monitor/internal/fpsstats"
	"github.com/qazerd/frame-monitor/internal/gstsource"
	"github.com/qazerd/frame-monitor/internal/metrics"
	"github.com/qazerd/frame-monitor/internal/mocksource"
	"github.com/qazerd/frame-monitor/internal/recovery"
)

// Version information
const version = "v0.1.0"

// source is what both acquisition layers provide.
type source interface {
	framemonitor.Source
	Done() <-chan struct{}
}

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (optional)")
	verbosity := flag.String("verbosity", "", "Override monitor verbosity: on_anomaly, always_show")
	sourceType := flag.String("source", "", "Override source type: mock, gstreamer")
	pipeline := flag.String("pipeline", "", "GStreamer pipeline ending in an appsink (implies --source gstreamer)")
	fps := flag.Float64("fps", 0, "Override mock source FPS")
	maxFrames := flag.Uint64("max-frames", 0, "Stop after this many frames (0 = unlimited)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("frame-monitor %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Command-line overrides, re-validated so defaults follow the new values
	if *verbosity != "" {
		cfg.Monitor.Verbosity = *verbosity
	}
	if *pipeline != "" {
		cfg.Source.Type = config.SourceGStreamer
		cfg.Source.GStreamer.Pipeline = *pipeline
	}
	if *sourceType != "" {
		cfg.Source.Type = *sourceType
	}
	if *fps > 0 {
		cfg.Source.Mock.FPS = *fps
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, *maxFrames, logger); err != nil {
		logger.Error("frame-monitor: exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	// stdout carries the console view; logs go to stderr
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *config.Config, maxFrames uint64, logger *slog.Logger) error {
	verbosity, err := framemonitor.ParseVerbosity(cfg.Monitor.Verbosity)
	if err != nil {
		return err
	}
	sessionID := uuid.New().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sinks
	window := fpsstats.NewWindow(fpsstats.DefaultWindowSize)
	sinks := []framemonitor.Sink{framemonitor.NewLogSink(logger), window}
	if cfg.Console.Enabled {
		sinks = append(sinks, framemonitor.NewConsoleSink(os.Stdout))
	}

	var collector *metrics.Collector
	var metricsServer *http.Server
	if cfg.Metrics.Listen != "" {
		collector = metrics.NewCollector(cfg.StreamID)
		collector.SetInfo(version, sessionID, verbosity)
		sinks = append(sinks, collector)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, collector.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("frame-monitor: metrics endpoint listening",
				"addr", cfg.Metrics.Listen,
				"path", cfg.Metrics.Path,
			)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("frame-monitor: metrics server failed", "error", err)
			}
		}()
	}

	var mqttEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mqttEmitter = emitter.NewMQTTEmitter(emitter.Config{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Topic:     cfg.MQTT.Topic,
			QoS:       cfg.MQTT.QoS,
			Encoding:  cfg.MQTT.Encoding,
			StreamID:  cfg.StreamID,
			SessionID: sessionID,
		}, emitter.WithLogger(logger))
		if err := mqttEmitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		mqttEmitter.Start(ctx)
		sinks = append(sinks, mqttEmitter)
	}

	// Source
	src, err := newSource(cfg, logger, collector)
	if err != nil {
		return err
	}

	monitorCfg := framemonitor.MonitorConfig{
		Verbosity: verbosity,
		MaxGap:    *cfg.Monitor.MaxGap,
	}
	obs := framemonitor.NewObserver(monitorCfg, framemonitor.NewMonotonicClock(), src,
		framemonitor.WithLogger(logger),
		framemonitor.WithSinks(sinks...),
		framemonitor.WithSessionID(sessionID),
	)

	// Frame limit: the handler keeps requeueing past the limit until Stop
	limitReached := make(chan struct{})
	var limitOnce sync.Once
	var delivered atomic.Uint64
	handler := func(f framemonitor.Frame) {
		obs.FrameReceived(f)
		if maxFrames > 0 && delivered.Add(1) == maxFrames {
			limitOnce.Do(func() { close(limitReached) })
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	printBanner(cfg, verbosity, sessionID, maxFrames)

	if err := src.Start(ctx, handler); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}
	logger.Info("frame-monitor: started",
		"stream_id", cfg.StreamID,
		"source", cfg.Source.Type,
		"verbosity", verbosity.String(),
		"session_id", sessionID,
	)
	startTime := time.Now()

	// Periodic cadence summary
	var statsWG sync.WaitGroup
	if cfg.StatsIntervalS > 0 {
		statsWG.Add(1)
		go func() {
			defer statsWG.Done()
			ticker := time.NewTicker(time.Duration(cfg.StatsIntervalS) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					st := window.Drain()
					if collector != nil {
						collector.ObserveWindow(st)
					}
					logger.Info("frame-monitor: cadence summary",
						"uptime", time.Since(startTime).Round(time.Second),
						"fps_mean", st.FPSMean,
						"fps_stddev", st.FPSStdDev,
						"jitter_max", st.JitterMax,
						"stable", st.IsStable,
						"samples", st.Samples,
						"missing", st.MissingFrames,
						"resyncs", st.Resyncs,
						"anomalies", st.Anomalies,
					)
				}
			}
		}()
	}

	select {
	case <-sigChan:
		fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
	case <-limitReached:
		fmt.Printf("\n\nReached maximum frames (%d), stopping...\n", maxFrames)
	case <-src.Done():
		logger.Warn("frame-monitor: source finished")
	}

	// Shutdown within shutdown_timeout_s
	timeout := time.Duration(cfg.ShutdownTimeoutS) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := src.Stop(); err != nil {
			logger.Error("frame-monitor: error stopping source", "error", err)
		}
		cancel()
		statsWG.Wait()
		if mqttEmitter != nil {
			if err := mqttEmitter.Close(); err != nil {
				logger.Error("frame-monitor: error closing MQTT emitter", "error", err)
			}
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("frame-monitor: error stopping metrics server", "error", err)
			}
		}
	}()

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("frame-monitor: shutdown timed out", "timeout", timeout)
	}

	printFinalStats(obs.Stats(), window.Stats(), time.Since(startTime))
	logger.Info("frame-monitor: stopped", "session_id", sessionID)
	return nil
}

func newSource(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (source, error) {
	switch cfg.Source.Type {
	case config.SourceGStreamer:
		g := cfg.Source.GStreamer
		gcfg := gstsource.Config{
			Pipeline:    g.Pipeline,
			SinkName:    g.SinkName,
			MaxRestarts: g.MaxRestarts,
			Logger:      logger,
		}
		if collector != nil {
			gcfg.OnRestart = func(c recovery.Category) { collector.SourceRestarted(c.String()) }
		}
		src, err := gstsource.New(gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create GStreamer source: %w", err)
		}
		return src, nil

	default:
		m := cfg.Source.Mock
		pf, err := framemonitor.ParsePixelFormat(m.PixelFormat)
		if err != nil {
			return nil, fmt.Errorf("mock.pixel_format: %w", err)
		}
		src, err := mocksource.New(mocksource.Config{
			FPS:            m.FPS,
			Width:          m.Width,
			Height:         m.Height,
			PixelFormat:    pf,
			Buffers:        m.Buffers,
			DropRate:       m.DropRate,
			IncompleteRate: m.IncompleteRate,
			UnreadableRate: m.UnreadableRate,
			Seed:           m.Seed,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mock source: %w", err)
		}
		return src, nil
	}
}

func printBanner(cfg *config.Config, v framemonitor.Verbosity, sessionID string, maxFrames uint64) {
	fmt.Printf("\n")
	fmt.Printf("Frame Monitor %s\n", version)
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Stream ID:     %s\n", cfg.StreamID)
	fmt.Printf("  Session:       %s\n", sessionID)
	fmt.Printf("  Source:        %s\n", cfg.Source.Type)
	if cfg.Source.Type == config.SourceGStreamer {
		fmt.Printf("  Pipeline:      %s\n", cfg.Source.GStreamer.Pipeline)
	} else {
		fmt.Printf("  Mock FPS:      %.2f (%dx%d %s)\n",
			cfg.Source.Mock.FPS, cfg.Source.Mock.Width, cfg.Source.Mock.Height, cfg.Source.Mock.PixelFormat)
	}
	fmt.Printf("  Verbosity:     %s\n", v)
	if *cfg.Monitor.MaxGap == 0 {
		fmt.Printf("  Max Gap:       unbounded\n")
	} else {
		fmt.Printf("  Max Gap:       %d\n", *cfg.Monitor.MaxGap)
	}
	if maxFrames > 0 {
		fmt.Printf("  Max Frames:    %d\n", maxFrames)
	} else {
		fmt.Printf("  Max Frames:    unlimited\n")
	}
	fmt.Printf("\nPress Ctrl+C to stop gracefully\n\n")
}

func printFinalStats(st framemonitor.ObserverStats, w fpsstats.Stats, uptime time.Duration) {
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", uptime.Round(time.Second))
	fmt.Printf("  Frames Received:    %d\n", st.FramesReceived)
	fmt.Printf("  Heartbeats:         %d\n", st.Heartbeats)
	fmt.Printf("  Detailed Reports:   %d\n", st.Detailed)
	fmt.Printf("  Missing Frames:     %d\n", st.MissingFrames)
	fmt.Printf("  Resyncs:            %d\n", st.Resyncs)
	if st.RequeueErrors > 0 {
		fmt.Printf("  Requeue Failures:   %d\n", st.RequeueErrors)
	}
	fmt.Printf("  Last Window:        %s\n", w)
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
