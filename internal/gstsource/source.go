// Package gstsource delivers frames from a GStreamer pipeline ending in an
// appsink. Samples stay referenced until the consumer requeues them, and at
// most Buffers samples are in flight: further samples are dropped, which the
// monitor sees as missing identifiers.
package gstsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	framemonitor "github.com/qazerd/frame-monitor"
	"github.com/qazerd/frame-monitor/internal/recovery"
)

var (
	// ErrEndOfStream is returned when the pipeline posts EOS.
	ErrEndOfStream = errors.New("gstsource: end of stream")
	// ErrForeignFrame is returned when QueueFrame receives a frame this
	// source did not deliver.
	ErrForeignFrame = errors.New("gstsource: frame does not belong to this source")
	// ErrAlreadyQueued is returned when a frame is requeued twice.
	ErrAlreadyQueued = errors.New("gstsource: frame already queued")

	errNoOffset = errors.New("gstsource: buffer has no offset")
)

var initOnce sync.Once

// Config configures a Source.
type Config struct {
	Pipeline    string // gst-launch description ending in an appsink
	SinkName    string // appsink element name (default: "sink")
	Buffers     int    // samples in flight before dropping (default: 8)
	MaxRestarts int    // pipeline restarts before giving up (default: 5)
	RetryDelay  time.Duration
	MaxDelay    time.Duration

	// OnRestart is called before each pipeline restart with the category
	// of the error that stopped it. May be nil.
	OnRestart func(recovery.Category)

	Logger *slog.Logger
}

// Stats contains source statistics
type Stats struct {
	Samples   uint64 // samples pulled from the appsink
	Delivered uint64
	Dropped   uint64 // samples dropped with all buffers in flight
	Requeued  uint64
	Restarts  uint32
	Errors    map[string]uint64 // pipeline errors by category
}

// Source is a framemonitor.Source backed by a GStreamer appsink.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	pipeline *gst.Pipeline
	started  time.Time

	// buildMu guards builder; the appsink callback must never wait on mu
	// while SetState(StateNull) joins the streaming thread.
	buildMu sync.Mutex
	builder frameBuilder

	frames   chan *Frame
	inflight chan struct{}
	restart  recovery.State

	samples   atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	requeued  atomic.Uint64

	errMu  sync.Mutex
	errors map[recovery.Category]uint64
}

var _ framemonitor.Source = (*Source)(nil)

// New validates cfg. The pipeline is built by Start.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Pipeline) == "" {
		return nil, fmt.Errorf("gstsource: pipeline is required")
	}
	if !strings.Contains(cfg.Pipeline, "appsink") {
		return nil, fmt.Errorf("gstsource: pipeline must contain an appsink")
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "sink"
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 8
	}
	def := recovery.DefaultConfig()
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Source{
		cfg:      cfg,
		logger:   logger,
		done:     make(chan struct{}),
		frames:   make(chan *Frame, cfg.Buffers),
		inflight: make(chan struct{}, cfg.Buffers),
		errors:   make(map[recovery.Category]uint64),
	}, nil
}

// Start launches the pipeline and the delivery goroutine. Pipeline errors
// trigger restarts with exponential backoff; codec and auth errors, EOS and
// an exhausted restart budget end delivery and close Done.
func (s *Source) Start(ctx context.Context, handler framemonitor.FrameHandler) error {
	if handler == nil {
		return fmt.Errorf("gstsource: handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("gstsource: already running")
	}

	initOnce.Do(func() { gst.Init(nil) })

	// First attempt is synchronous so configuration errors surface here
	if err := s.startPipeline(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.started = time.Now()

	// A restarted source gets a fresh Done channel and restart budget
	select {
	case <-s.done:
		s.done = make(chan struct{})
	default:
	}
	s.restart.CurrentRetries = 0

	s.wg.Add(2)
	go s.deliver(ctx, handler)
	go s.supervise(ctx, s.done)

	s.logger.Info("gstsource: pipeline started",
		"pipeline", s.cfg.Pipeline,
		"buffers", s.cfg.Buffers,
	)
	return nil
}

// startPipeline parses the description, wires the appsink and sets PLAYING.
// Caller holds s.mu.
func (s *Source) startPipeline() error {
	pipeline, err := gst.NewPipelineFromString(s.cfg.Pipeline)
	if err != nil {
		return &recovery.Permanent{Err: fmt.Errorf("gstsource: failed to parse pipeline: %w", err)}
	}

	elem, err := pipeline.GetElementByName(s.cfg.SinkName)
	if err != nil || elem == nil {
		pipeline.SetState(gst.StateNull)
		return &recovery.Permanent{Err: fmt.Errorf("gstsource: appsink %q not found in pipeline", s.cfg.SinkName)}
	}

	sink := app.SinkFromElement(elem)
	sink.SetProperty("sync", false)
	sink.SetProperty("emit-signals", false)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	s.buildMu.Lock()
	s.builder.reset()
	s.buildMu.Unlock()

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstsource: failed to start pipeline: %w", err)
	}
	s.pipeline = pipeline
	return nil
}

// onNewSample runs on the GStreamer streaming thread.
func (s *Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		s.logger.Warn("gstsource: failed to pull sample from appsink, skipping")
		return gst.FlowOK
	}
	s.samples.Add(1)

	si := sampleInfo{offset: -1, video: readCaps(sample.GetCaps())}
	if buffer := sample.GetBuffer(); buffer != nil {
		if off := buffer.Offset(); off >= 0 {
			si.offset = off
		}
		si.corrupted = buffer.HasFlags(gst.BufferFlagCorrupted)
		si.size = int(buffer.GetSize())
	}

	s.buildMu.Lock()
	f := s.builder.build(si)
	s.buildMu.Unlock()

	// The buffer pool is exhausted: the identifier is consumed, nothing is
	// delivered.
	select {
	case s.inflight <- struct{}{}:
	default:
		s.dropped.Add(1)
		s.logger.Debug("gstsource: all buffers in flight, dropping sample", "id", f.id)
		return gst.FlowOK
	}

	f.owner = s
	f.release = func() { sample = nil }

	select {
	case s.frames <- f:
	default:
		<-s.inflight
		s.dropped.Add(1)
	}
	return gst.FlowOK
}

// readCaps extracts the raw video fields from the first caps structure.
// Missing or mistyped fields are left unset and surface as unreadable.
func readCaps(caps *gst.Caps) videoInfo {
	var vi videoInfo
	if caps == nil || caps.GetSize() == 0 {
		return vi
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return vi
	}

	if val, err := structure.GetValue("width"); err == nil {
		if width, ok := val.(int); ok && width >= 0 {
			vi.width, vi.hasWidth = uint32(width), true
		}
	}
	if val, err := structure.GetValue("height"); err == nil {
		if height, ok := val.(int); ok && height >= 0 {
			vi.height, vi.hasHeight = uint32(height), true
		}
	}
	if val, err := structure.GetValue("format"); err == nil {
		if format, ok := val.(string); ok {
			vi.format = format
		}
	}
	return vi
}

// deliver hands frames to the handler from a single goroutine.
func (s *Source) deliver(ctx context.Context, handler framemonitor.FrameHandler) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.drainFrames()
			return
		case f := <-s.frames:
			s.delivered.Add(1)
			handler(f)
		}
	}
}

// drainFrames releases frames that were never delivered.
func (s *Source) drainFrames() {
	for {
		select {
		case f := <-s.frames:
			f.release()
			<-s.inflight
		default:
			return
		}
	}
}

// supervise watches the bus and restarts the pipeline on errors.
func (s *Source) supervise(ctx context.Context, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	first := true
	run := func(ctx context.Context) error {
		if !first {
			s.mu.Lock()
			err := s.startPipeline()
			s.mu.Unlock()
			if err != nil {
				return err
			}
			s.logger.Info("gstsource: pipeline restarted",
				"restarts", s.restart.Restarts.Load(),
			)
		}
		first = false

		err := s.watchBus(ctx)
		s.stopPipeline()
		if err == nil {
			return nil
		}

		var perm *recovery.Permanent
		if !errors.As(err, &perm) && s.cfg.OnRestart != nil {
			s.cfg.OnRestart(categoryOf(err))
		}
		return err
	}

	cfg := recovery.Config{
		MaxRetries:    s.cfg.MaxRestarts,
		RetryDelay:    s.cfg.RetryDelay,
		MaxRetryDelay: s.cfg.MaxDelay,
	}
	err := recovery.RunWithRestart(ctx, run, cfg, &s.restart, s.logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("gstsource: delivery stopped",
			"error", err,
			"uptime", time.Since(s.started),
			"samples", s.samples.Load(),
			"restarts", s.restart.Restarts.Load(),
		)
	}
}

// pipelineError carries the classified category of a bus error.
type pipelineError struct {
	category recovery.Category
	msg      string
}

func (e *pipelineError) Error() string {
	return fmt.Sprintf("gstsource: pipeline error [%s]: %s", e.category, e.msg)
}

func categoryOf(err error) recovery.Category {
	var pe *pipelineError
	if errors.As(err, &pe) {
		return pe.category
	}
	return recovery.CategoryUnknown
}

// watchBus polls the pipeline bus until an error, EOS or cancellation.
// It returns nil only when ctx is cancelled.
func (s *Source) watchBus(ctx context.Context) error {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()
	if pipeline == nil {
		return fmt.Errorf("gstsource: pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Short timeout keeps shutdown responsive
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			s.logger.Info("gstsource: end of stream received",
				"uptime", time.Since(s.started),
				"samples", s.samples.Load(),
			)
			return &recovery.Permanent{Err: ErrEndOfStream}

		case gst.MessageError:
			gerr := msg.ParseError()
			category := recovery.Classify(gerr.Error(), gerr.DebugString())
			s.countError(category)

			s.logger.Error("gstsource: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"samples", s.samples.Load(),
				"restarts", s.restart.Restarts.Load(),
			)
			err := &pipelineError{category: category, msg: gerr.Error()}
			if !category.Retryable() {
				return &recovery.Permanent{Err: err}
			}
			return err

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, state := msg.ParseStateChanged()
				s.logger.Debug("gstsource: pipeline state changed", "from", old, "to", state)
				if state == gst.StatePlaying {
					s.restart.CurrentRetries = 0
				}
			}
		}
	}
}

func (s *Source) stopPipeline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		s.pipeline.SetState(gst.StateNull)
		s.pipeline = nil
	}
}

func (s *Source) countError(c recovery.Category) {
	s.errMu.Lock()
	s.errors[c]++
	s.errMu.Unlock()
}

// QueueFrame releases the sample held by f. A nil frame is accepted and
// ignored.
func (s *Source) QueueFrame(f framemonitor.Frame) error {
	if f == nil {
		return nil
	}
	gf, ok := f.(*Frame)
	if !ok || gf.owner != s {
		return ErrForeignFrame
	}
	if !gf.queued.CompareAndSwap(false, true) {
		return ErrAlreadyQueued
	}
	gf.release()
	<-s.inflight
	s.requeued.Add(1)
	return nil
}

// Stop halts the pipeline and waits for delivery to end. It is idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.stopPipeline()

	st := s.Stats()
	s.logger.Info("gstsource: stopped",
		"samples", st.Samples,
		"delivered", st.Delivered,
		"dropped", st.Dropped,
		"restarts", st.Restarts,
	)
	return nil
}

// Done is closed when the pipeline will not be restarted again.
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stats returns source statistics
func (s *Source) Stats() Stats {
	s.errMu.Lock()
	errs := make(map[string]uint64, len(s.errors))
	for c, n := range s.errors {
		errs[c.String()] = n
	}
	s.errMu.Unlock()

	return Stats{
		Samples:   s.samples.Load(),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
		Requeued:  s.requeued.Load(),
		Restarts:  s.restart.Restarts.Load(),
		Errors:    errs,
	}
}
