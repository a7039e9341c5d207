// Package mocksource generates synthetic frames with a fixed buffer pool and
// optional fault injection, for running the monitor without a camera.
package mocksource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	framemonitor "github.com/qazerd/frame-monitor"
)

var (
	// ErrForeignFrame is returned when QueueFrame receives a frame this
	// source did not deliver.
	ErrForeignFrame = errors.New("mocksource: frame does not belong to this source")
	// ErrAlreadyQueued is returned when a buffer is requeued twice.
	ErrAlreadyQueued = errors.New("mocksource: frame already queued")
)

// Config configures a Source.
type Config struct {
	FPS         float64
	Width       uint32
	Height      uint32
	PixelFormat framemonitor.PixelFormat
	Buffers     int    // buffer pool size (default: 4)
	MaxFrames   uint64 // stop after this many identifiers (0 = unlimited)
	FirstID     uint64

	// Fault injection, each a probability in [0, 1]
	DropRate       float64 // identifier consumed, nothing delivered
	IncompleteRate float64 // delivered with a non-Complete status
	UnreadableRate float64 // delivered with one or more unreadable fields
	Seed           int64

	Logger *slog.Logger
}

// Frame is a pooled buffer carrying the frame description.
type Frame struct {
	framemonitor.Snapshot
	Data []byte

	owner  *Source
	queued atomic.Bool
}

var _ framemonitor.Frame = (*Frame)(nil)

// Stats contains source statistics
type Stats struct {
	Generated uint64 // identifiers consumed
	Delivered uint64
	Dropped   uint64 // injected drops
	Underruns uint64 // no free buffer when a frame was due
	Requeued  uint64
}

// Source is a framemonitor.Source producing frames at Config.FPS.
type Source struct {
	cfg    Config
	logger *slog.Logger
	rng    *rand.Rand
	pool   chan *Frame
	nextID uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}

	generated atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	underruns atomic.Uint64
	requeued  atomic.Uint64
}

var _ framemonitor.Source = (*Source)(nil)

// New creates a source with a full buffer pool. Invalid settings fail fast.
func New(cfg Config) (*Source, error) {
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("mocksource: fps must be positive, got %v", cfg.FPS)
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 4
	}
	for name, rate := range map[string]float64{
		"drop_rate":       cfg.DropRate,
		"incomplete_rate": cfg.IncompleteRate,
		"unreadable_rate": cfg.UnreadableRate,
	} {
		if rate < 0 || rate > 1 {
			return nil, fmt.Errorf("mocksource: %s must be in [0, 1], got %v", name, rate)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		pool:   make(chan *Frame, cfg.Buffers),
		nextID: cfg.FirstID,
		done:   make(chan struct{}),
	}
	size := int(cfg.Width) * int(cfg.Height)
	for i := 0; i < cfg.Buffers; i++ {
		f := &Frame{Data: make([]byte, size), owner: s}
		f.queued.Store(true)
		s.pool <- f
	}
	return s, nil
}

// Start begins generating frames until ctx is cancelled, Stop is called or
// MaxFrames identifiers were produced.
func (s *Source) Start(ctx context.Context, handler framemonitor.FrameHandler) error {
	if handler == nil {
		return fmt.Errorf("mocksource: handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("mocksource: already running")
	}
	s.running = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("mocksource: starting",
		"fps", s.cfg.FPS,
		"width", s.cfg.Width,
		"height", s.cfg.Height,
		"buffers", s.cfg.Buffers,
		"drop_rate", s.cfg.DropRate,
	)

	s.wg.Add(1)
	go s.generate(ctx, handler)
	return nil
}

func (s *Source) generate(ctx context.Context, handler framemonitor.FrameHandler) {
	defer s.wg.Done()
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.exhausted() {
				s.logger.Info("mocksource: frame limit reached", "max_frames", s.cfg.MaxFrames)
				return
			}
			s.Step(handler)
		}
	}
}

func (s *Source) exhausted() bool {
	return s.cfg.MaxFrames > 0 && s.generated.Load() >= s.cfg.MaxFrames
}

// Step produces the next identifier and delivers it to handler unless it is
// dropped or no buffer is free. It reports whether a frame was delivered.
//
// Step is not safe for concurrent use; Start calls it from one goroutine.
func (s *Source) Step(handler framemonitor.FrameHandler) bool {
	id := s.nextID
	s.nextID++
	s.generated.Add(1)

	if s.roll(s.cfg.DropRate) {
		s.dropped.Add(1)
		return false
	}

	var f *Frame
	select {
	case f = <-s.pool:
	default:
		s.underruns.Add(1)
		s.logger.Debug("mocksource: no free buffer, frame lost", "id", id)
		return false
	}

	f.queued.Store(false)
	f.Snapshot = framemonitor.Snapshot{
		ID:     id,
		Status: framemonitor.StatusComplete,
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
		Format: s.cfg.PixelFormat,
	}
	if s.roll(s.cfg.IncompleteRate) {
		f.Status = []framemonitor.FrameStatus{
			framemonitor.StatusIncomplete,
			framemonitor.StatusTooSmall,
			framemonitor.StatusInvalid,
		}[s.rng.Intn(3)]
	}
	if s.roll(s.cfg.UnreadableRate) {
		// At least one of the five fields
		f.Unreadable = framemonitor.Field(s.rng.Intn(31) + 1)
	}

	s.delivered.Add(1)
	handler(f)
	return true
}

func (s *Source) roll(p float64) bool {
	return p > 0 && s.rng.Float64() < p
}

// QueueFrame returns a delivered buffer to the pool. A nil frame is accepted
// and ignored.
func (s *Source) QueueFrame(f framemonitor.Frame) error {
	if f == nil {
		return nil
	}
	mf, ok := f.(*Frame)
	if !ok || mf.owner != s {
		return ErrForeignFrame
	}
	if !mf.queued.CompareAndSwap(false, true) {
		return ErrAlreadyQueued
	}
	s.pool <- mf
	s.requeued.Add(1)
	return nil
}

// Stop halts generation. It is idempotent.
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

	st := s.Stats()
	s.logger.Info("mocksource: stopped",
		"generated", st.Generated,
		"delivered", st.Delivered,
		"dropped", st.Dropped,
		"underruns", st.Underruns,
	)
	return nil
}

// Done is closed when generation ends, e.g. after MaxFrames.
func (s *Source) Done() <-chan struct{} { return s.done }

// Free returns the number of buffers currently in the pool.
func (s *Source) Free() int { return len(s.pool) }

// Stats returns source statistics
func (s *Source) Stats() Stats {
	return Stats{
		Generated: s.generated.Load(),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
		Underruns: s.underruns.Load(),
		Requeued:  s.requeued.Load(),
	}
}
