package fpsstats

import (
	"sync"

	framemonitor "github.com/qazerd/frame-monitor"
)

// DefaultWindowSize keeps about ten seconds of intervals at 30 FPS.
const DefaultWindowSize = 300

// Window is a framemonitor.Sink that keeps the most recent inter-frame
// intervals derived from decision FPS values, plus notice counters.
//
// Only decisions with a valid FPS contribute: the first frame, frames after
// a gap or resync, and timing anomalies add nothing.
type Window struct {
	mu      sync.Mutex
	buf     []float64
	next    int
	full    bool
	missing uint64
	resyncs uint64
	anomaly uint64
}

var _ framemonitor.Sink = (*Window)(nil)

// NewWindow keeps up to size intervals (DefaultWindowSize when size <= 0).
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{buf: make([]float64, size)}
}

// Add records one interval in seconds.
func (w *Window) Add(interval float64) {
	if interval <= 0 {
		return
	}
	w.mu.Lock()
	w.add(interval)
	w.mu.Unlock()
}

func (w *Window) add(interval float64) {
	w.buf[w.next] = interval
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

func (w *Window) Decision(d framemonitor.Decision) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d.Report.FPSValid && d.Report.FPS > 0 {
		w.add(1.0 / d.Report.FPS)
	}
	if d.Kind == framemonitor.Detailed && d.Reasons != framemonitor.ReasonAlwaysShow {
		w.anomaly++
	}
}

func (w *Window) Notice(n framemonitor.Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n.Kind == framemonitor.NoticeResync {
		w.resyncs++
		return
	}
	w.missing += n.Missing
}

// Len returns the number of intervals currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// Stats computes statistics over the held intervals.
func (w *Window) Stats() Stats {
	return w.collect(false)
}

// Drain returns Stats and clears the window in one step.
func (w *Window) Drain() Stats {
	return w.collect(true)
}

func (w *Window) collect(reset bool) Stats {
	w.mu.Lock()
	samples := w.snapshot()
	missing, resyncs, anomaly := w.missing, w.resyncs, w.anomaly
	if reset {
		w.reset()
	}
	w.mu.Unlock()

	s := Calculate(samples)
	s.MissingFrames = missing
	s.Resyncs = resyncs
	s.Anomalies = anomaly
	return s
}

// Reset drops all intervals and counters.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

func (w *Window) reset() {
	w.next = 0
	w.full = false
	w.missing = 0
	w.resyncs = 0
	w.anomaly = 0
}

// snapshot copies intervals oldest first. Caller holds w.mu.
func (w *Window) snapshot() []float64 {
	if !w.full {
		return append([]float64(nil), w.buf[:w.next]...)
	}
	out := make([]float64, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	return append(out, w.buf[:w.next]...)
}
