package framemonitor

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink consumes monitor output. Notice is always called before Decision for
// the event that triggered the notice.
type Sink interface {
	Notice(n Notice)
	Decision(d Decision)
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (ms MultiSink) Notice(n Notice) {
	for _, s := range ms {
		s.Notice(n)
	}
}

func (ms MultiSink) Decision(d Decision) {
	for _, s := range ms {
		s.Decision(d)
	}
}

// ConsoleSink renders the classic console view: a dot per heartbeat on one
// line, a full line per detailed report and per notice.
type ConsoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	midLine bool
}

// NewConsoleSink writes to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) Notice(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakLine()
	fmt.Fprintln(c.w, n.String())
}

func (c *ConsoleSink) Decision(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.Kind == Heartbeat {
		fmt.Fprint(c.w, HeartbeatMarker)
		c.midLine = true
		return
	}
	c.breakLine()
	fmt.Fprintln(c.w, d.Report.String())
}

// breakLine terminates a pending run of heartbeat dots.
func (c *ConsoleSink) breakLine() {
	if c.midLine {
		fmt.Fprintln(c.w)
		c.midLine = false
	}
}

// LogSink reports monitor output through slog. Heartbeats go to debug level,
// anomalies and notices to warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs to logger, or slog.Default() when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Notice(n Notice) {
	switch n.Kind {
	case NoticeResync:
		l.logger.Warn("frame-monitor: identifier discontinuity, resynchronizing",
			"prev_id", n.PrevID,
			"id", n.ID,
		)
	default:
		l.logger.Warn("frame-monitor: "+MissingFramesText(n.Missing),
			"missing", n.Missing,
			"prev_id", n.PrevID,
			"id", n.ID,
		)
	}
}

func (l *LogSink) Decision(d Decision) {
	r := d.Report
	if d.Kind == Heartbeat {
		l.logger.Debug("frame-monitor: frame ok",
			"id", r.ID,
			"fps", FormatFPS(r.FPS, r.FPSValid),
		)
		return
	}

	attrs := []any{
		"id", FormatID(r.ID, r.IDValid),
		"status", FormatStatus(r.Status, r.StatusValid),
		"size", FormatDimension(r.Width, r.WidthValid) + "x" + FormatDimension(r.Height, r.HeightValid),
		"format", FormatPixelFormat(r.Format, r.FormatValid),
		"fps", FormatFPS(r.FPS, r.FPSValid),
		"reasons", d.Reasons.String(),
	}
	if d.Reasons.Has(ReasonTimingAnomaly) {
		attrs = append(attrs, "error", ErrAnomalousTiming)
	}

	// AlwaysShow alone is not an anomaly
	if d.Reasons == ReasonAlwaysShow {
		l.logger.Info("frame-monitor: frame report", attrs...)
		return
	}
	l.logger.Warn("frame-monitor: frame anomaly", attrs...)
}
