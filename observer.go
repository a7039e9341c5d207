package framemonitor

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ObserverStats is a snapshot of Observer counters.
type ObserverStats struct {
	// SessionID identifies this observer run in logs and published messages
	SessionID string
	// StartedAt is when the observer was created
	StartedAt time.Time
	// FramesReceived counts every FrameReceived call, nil frames included
	FramesReceived uint64
	// NilFrames counts calls without a frame
	NilFrames uint64
	// Detailed counts Detailed decisions
	Detailed uint64
	// Heartbeats counts Heartbeat decisions
	Heartbeats uint64
	// MissingFrames is the sum of all reported gaps
	MissingFrames uint64
	// Gaps counts gap notices
	Gaps uint64
	// Resyncs counts resync notices
	Resyncs uint64
	// RequeueErrors counts failed QueueFrame calls
	RequeueErrors uint64
}

// ObserverOption customizes an Observer.
type ObserverOption func(*Observer)

// WithLogger sets the logger used for per-frame receipt messages.
func WithLogger(l *slog.Logger) ObserverOption {
	return func(o *Observer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSinks appends sinks receiving notices and decisions.
func WithSinks(sinks ...Sink) ObserverOption {
	return func(o *Observer) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) ObserverOption {
	return func(o *Observer) {
		if id != "" {
			o.sessionID = id
		}
	}
}

// Observer is the frame-arrival callback: it timestamps each frame, runs the
// cadence monitor, forwards the output to its sinks and hands the buffer
// back to the acquisition layer.
//
// FrameReceived is safe to call from several goroutines; calls are
// serialized so the monitor sees one event at a time.
type Observer struct {
	mu       sync.Mutex
	monitor  *Monitor
	clock    Clock
	requeuer Requeuer
	sinks    MultiSink
	logger   *slog.Logger

	sessionID string
	startedAt time.Time

	framesReceived uint64
	nilFrames      uint64
	detailed       uint64
	heartbeats     uint64
	missingFrames  uint64
	gaps           uint64
	resyncs        uint64
	requeueErrors  uint64
}

// NewObserver builds an observer owning a new Monitor configured by cfg.
// Notices from the monitor are forwarded to the sinks (after cfg.OnNotice,
// if set).
func NewObserver(cfg MonitorConfig, clock Clock, requeuer Requeuer, opts ...ObserverOption) *Observer {
	o := &Observer{
		clock:     clock,
		requeuer:  requeuer,
		logger:    slog.Default(),
		sessionID: uuid.New().String(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = NewMonotonicClock()
	}

	user := cfg.OnNotice
	cfg.OnNotice = func(n Notice) {
		if user != nil {
			user(n)
		}
		o.onNotice(n)
	}
	o.monitor = NewMonitor(cfg)
	return o
}

// FrameReceived processes one frame and then requeues it. The requeue is
// attempted for every call, including nil frames, which are not processed.
func (o *Observer) FrameReceived(f Frame) {
	atomic.AddUint64(&o.framesReceived, 1)
	defer o.requeue(f)

	if isNil(f) {
		atomic.AddUint64(&o.nilFrames, 1)
		o.logger.Warn("frame-monitor: frame pointer nil", "session_id", o.sessionID)
		return
	}

	d := o.process(f)

	if d.Kind == Detailed {
		atomic.AddUint64(&o.detailed, 1)
	} else {
		atomic.AddUint64(&o.heartbeats, 1)
	}

	if d.Report.StatusValid && d.Report.Status == StatusComplete {
		o.logger.Debug("frame-monitor: frame received", "id", d.Report.ID)
	} else {
		o.logger.Debug("frame-monitor: frame incomplete",
			"id", FormatID(d.Report.ID, d.Report.IDValid),
			"status", FormatStatus(d.Report.Status, d.Report.StatusValid),
		)
	}
}

func (o *Observer) process(f Frame) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.monitor.Process(FrameEvent{Frame: f, Timestamp: o.clock.Now()})
	o.sinks.Decision(d)
	return d
}

// isNil also catches typed nils such as (*Snapshot)(nil) wrapped in a Frame.
func isNil(f Frame) bool {
	if f == nil {
		return true
	}
	v := reflect.ValueOf(f)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// onNotice runs under o.mu (called from inside Monitor.Process).
func (o *Observer) onNotice(n Notice) {
	switch n.Kind {
	case NoticeResync:
		atomic.AddUint64(&o.resyncs, 1)
	default:
		atomic.AddUint64(&o.gaps, 1)
		atomic.AddUint64(&o.missingFrames, n.Missing)
	}
	o.sinks.Notice(n)
}

func (o *Observer) requeue(f Frame) {
	if o.requeuer == nil {
		return
	}
	if err := o.requeuer.QueueFrame(f); err != nil {
		atomic.AddUint64(&o.requeueErrors, 1)
		o.logger.Warn("frame-monitor: failed to requeue frame",
			"error", err,
			"session_id", o.sessionID,
		)
	}
}

// Verbosity returns the configured verbosity of the underlying monitor.
func (o *Observer) Verbosity() Verbosity {
	return o.monitor.Config().Verbosity
}

// Reset invalidates the monitor continuity state, e.g. after the source
// was restarted.
func (o *Observer) Reset() {
	o.mu.Lock()
	o.monitor.Reset()
	o.mu.Unlock()
}

// Stats returns a snapshot of the observer counters.
func (o *Observer) Stats() ObserverStats {
	return ObserverStats{
		SessionID:      o.sessionID,
		StartedAt:      o.startedAt,
		FramesReceived: atomic.LoadUint64(&o.framesReceived),
		NilFrames:      atomic.LoadUint64(&o.nilFrames),
		Detailed:       atomic.LoadUint64(&o.detailed),
		Heartbeats:     atomic.LoadUint64(&o.heartbeats),
		MissingFrames:  atomic.LoadUint64(&o.missingFrames),
		Gaps:           atomic.LoadUint64(&o.gaps),
		Resyncs:        atomic.LoadUint64(&o.resyncs),
		RequeueErrors:  atomic.LoadUint64(&o.requeueErrors),
	}
}

// SessionID returns the identifier of this observer run.
func (o *Observer) SessionID() string { return o.sessionID }
