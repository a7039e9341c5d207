package framemonitor

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRequeuer struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (r *fakeRequeuer) QueueFrame(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return r.err
}

func (r *fakeRequeuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// recordingSink keeps every call in order, tagged "N:" or "D:".
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Notice(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "N:"+n.String())
}

func (s *recordingSink) Decision(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "D:"+d.String())
}

// stepClock advances by a fixed step on every read.
func stepClock(start, step float64) Clock {
	now := start - step
	return ClockFunc(func() float64 {
		now += step
		return now
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestObserver_RequeuesEveryFrame(t *testing.T) {
	rq := &fakeRequeuer{}
	sink := &recordingSink{}
	obs := NewObserver(DefaultMonitorConfig(), stepClock(0, 0.04), rq,
		WithSinks(sink), WithLogger(quietLogger()))

	frames := []Frame{
		complete(1),
		complete(2),
		&Snapshot{Unreadable: FieldID | FieldStatus},
		nil,
		&Snapshot{ID: 3, Status: StatusIncomplete},
	}
	for _, f := range frames {
		obs.FrameReceived(f)
	}

	if got := rq.count(); got != len(frames) {
		t.Fatalf("expected %d requeues, got %d", len(frames), got)
	}
	if rq.frames[3] != nil {
		t.Errorf("nil frame must be requeued as nil")
	}

	stats := obs.Stats()
	if stats.FramesReceived != 5 || stats.NilFrames != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.Heartbeats != 2 || stats.Detailed != 2 {
		t.Errorf("expected 2 heartbeats and 2 detailed, got %+v", stats)
	}
	if len(sink.events) != 4 {
		t.Errorf("nil frame must not reach the sinks, got %v", sink.events)
	}
}

func TestObserver_TypedNilFrame(t *testing.T) {
	rq := &fakeRequeuer{}
	sink := &recordingSink{}
	obs := NewObserver(DefaultMonitorConfig(), stepClock(0, 0.04), rq,
		WithSinks(sink), WithLogger(quietLogger()))

	obs.FrameReceived((*Snapshot)(nil))
	obs.FrameReceived(complete(1))

	if got := rq.count(); got != 2 {
		t.Fatalf("typed nil frame must still be requeued, got %d requeues", got)
	}
	stats := obs.Stats()
	if stats.NilFrames != 1 || stats.Heartbeats != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if len(sink.events) != 1 {
		t.Errorf("typed nil frame must not reach the sinks, got %v", sink.events)
	}
}

// panickingFrame fails inside the monitor.
type panickingFrame struct{ Snapshot }

func (panickingFrame) ReceiveStatus() (FrameStatus, error) { panic("vendor accessor crashed") }

func TestObserver_PanicReleasesLock(t *testing.T) {
	rq := &fakeRequeuer{}
	obs := NewObserver(DefaultMonitorConfig(), stepClock(0, 0.04), rq, WithLogger(quietLogger()))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the accessor panic to propagate")
			}
		}()
		obs.FrameReceived(&panickingFrame{})
	}()

	done := make(chan struct{})
	go func() {
		obs.FrameReceived(complete(1))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer stayed locked after a recovered panic")
	}
	if got := rq.count(); got != 2 {
		t.Errorf("expected 2 requeues, got %d", got)
	}
}

func TestObserver_RequeueFailureIsCounted(t *testing.T) {
	rq := &fakeRequeuer{err: errors.New("queue closed")}
	obs := NewObserver(DefaultMonitorConfig(), stepClock(0, 0.1), rq, WithLogger(quietLogger()))

	obs.FrameReceived(complete(1))
	obs.FrameReceived(nil)

	if got := obs.Stats().RequeueErrors; got != 2 {
		t.Errorf("expected 2 requeue errors, got %d", got)
	}
}

func TestObserver_NoticePrecedesDecision(t *testing.T) {
	sink := &recordingSink{}
	var userNotices []Notice
	cfg := DefaultMonitorConfig()
	cfg.OnNotice = func(n Notice) { userNotices = append(userNotices, n) }

	obs := NewObserver(cfg, stepClock(0, 0.1), &fakeRequeuer{},
		WithSinks(sink), WithLogger(quietLogger()))

	obs.FrameReceived(complete(1))
	obs.FrameReceived(complete(4))

	want := []string{"D:.", "N:2 missing frames detected", "D:."}
	if strings.Join(sink.events, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", sink.events, want)
	}
	if len(userNotices) != 1 {
		t.Errorf("configured OnNotice must still be called, got %d", len(userNotices))
	}

	stats := obs.Stats()
	if stats.Gaps != 1 || stats.MissingFrames != 2 {
		t.Errorf("unexpected gap counters: %+v", stats)
	}
}

func TestObserver_ConcurrentCallbacksAreSerialized(t *testing.T) {
	rq := &fakeRequeuer{}
	obs := NewObserver(DefaultMonitorConfig(), NewMonotonicClock(), rq, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				obs.FrameReceived(complete(uint64(g*50 + i)))
			}
		}(g)
	}
	wg.Wait()

	if got := rq.count(); got != 400 {
		t.Errorf("expected 400 requeues, got %d", got)
	}
	stats := obs.Stats()
	if stats.Heartbeats+stats.Detailed != 400 {
		t.Errorf("every frame must produce one decision: %+v", stats)
	}
}

func TestObserver_ResetDropsContinuity(t *testing.T) {
	sink := &recordingSink{}
	obs := NewObserver(DefaultMonitorConfig(), stepClock(0, 0.1), nil,
		WithSinks(sink), WithLogger(quietLogger()), WithSessionID("session-1"))

	obs.FrameReceived(complete(1))
	obs.Reset()
	obs.FrameReceived(complete(90))

	for _, e := range sink.events {
		if strings.HasPrefix(e, "N:") {
			t.Errorf("no notice expected after reset, got %q", e)
		}
	}
	if obs.SessionID() != "session-1" {
		t.Errorf("unexpected session id %q", obs.SessionID())
	}
}

func TestConsoleSink_Rendering(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(DefaultMonitorConfig(), stepClock(1, 0.5), nil,
		WithSinks(NewConsoleSink(&buf)), WithLogger(quietLogger()))

	obs.FrameReceived(complete(1))
	obs.FrameReceived(complete(2))
	obs.FrameReceived(complete(4))
	obs.FrameReceived(&Snapshot{ID: 5, Status: StatusIncomplete, Width: 640, Height: 480, Format: PixelFormatMono8})
	obs.FrameReceived(complete(6))

	want := "..\n" +
		"1 missing frame detected\n" +
		".\n" +
		"Frame ID:5 Status:Incomplete Size:640x480 Format:0x1080001 FPS:2.00\n" +
		"."
	if got := buf.String(); got != want {
		t.Errorf("console output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestLogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewLogSink(logger)

	sink.Decision(Decision{Kind: Heartbeat})
	if buf.Len() != 0 {
		t.Errorf("heartbeat must log at debug level, got %q", buf.String())
	}

	sink.Decision(Decision{Kind: Detailed, Reasons: ReasonTimingAnomaly})
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "timing_anomaly") {
		t.Errorf("expected warn with timing anomaly, got %q", out)
	}

	buf.Reset()
	sink.Decision(Decision{Kind: Detailed, Reasons: ReasonAlwaysShow})
	if !strings.Contains(buf.String(), "level=INFO") {
		t.Errorf("always_show report should log at info, got %q", buf.String())
	}

	buf.Reset()
	sink.Notice(Notice{Kind: NoticeResync, PrevID: 9, ID: 2})
	if !strings.Contains(buf.String(), "resynchronizing") {
		t.Errorf("expected resync log, got %q", buf.String())
	}
}
