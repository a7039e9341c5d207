package gstsource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	framemonitor "github.com/qazerd/frame-monitor"
)

const rawCaps = "video/x-raw, format=(string)GRAY8, width=(int)640, height=(int)480, framerate=(fraction)30/1"

// vga is what readCaps yields for rawCaps.
var vga = videoInfo{width: 640, height: 480, format: "GRAY8", hasWidth: true, hasHeight: true}

func TestNew_FailFast(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
	}{
		{"empty pipeline", ""},
		{"whitespace pipeline", "   "},
		{"no appsink", "videotestsrc ! fakesink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{Pipeline: tt.pipeline}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Pipeline: "videotestsrc ! appsink name=sink"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.cfg.SinkName != "sink" {
		t.Errorf("SinkName = %q, want sink", s.cfg.SinkName)
	}
	if s.cfg.Buffers != 8 || cap(s.inflight) != 8 {
		t.Errorf("Buffers = %d, inflight cap = %d", s.cfg.Buffers, cap(s.inflight))
	}
	if s.cfg.MaxRestarts != 5 {
		t.Errorf("MaxRestarts = %d, want 5", s.cfg.MaxRestarts)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop before Start must be a no-op, got %v", err)
	}
}

func TestFrameBuilder_Identifiers(t *testing.T) {
	t.Run("counter without offsets", func(t *testing.T) {
		var b frameBuilder
		for want := uint64(0); want < 3; want++ {
			f := b.build(sampleInfo{offset: -1, size: 10, video: vga})
			if id, err := f.FrameID(); err != nil || id != want {
				t.Errorf("FrameID() = %d, %v, want %d", id, err, want)
			}
		}
	})

	t.Run("buffer offsets", func(t *testing.T) {
		var b frameBuilder
		for _, off := range []int64{100, 101, 105} {
			f := b.build(sampleInfo{offset: off, size: 10, video: vga})
			if id, _ := f.FrameID(); id != uint64(off) {
				t.Errorf("FrameID() = %d, want %d", id, off)
			}
		}
	})

	t.Run("offset disappears mid-stream", func(t *testing.T) {
		var b frameBuilder
		b.build(sampleInfo{offset: 7, size: 10, video: vga})
		f := b.build(sampleInfo{offset: -1, size: 10, video: vga})

		_, err := f.FrameID()
		var fe *framemonitor.FieldError
		if !errors.As(err, &fe) || fe.Field != framemonitor.FieldID {
			t.Fatalf("expected FieldError for the id, got %v", err)
		}
		if !errors.Is(err, framemonitor.ErrFieldUnreadable) {
			t.Errorf("error must match ErrFieldUnreadable, got %v", err)
		}
	})

	t.Run("reset restarts numbering", func(t *testing.T) {
		var b frameBuilder
		b.build(sampleInfo{offset: 3, video: vga})
		b.reset()
		f := b.build(sampleInfo{offset: -1, size: 1, video: vga})
		if id, err := f.FrameID(); err != nil || id != 0 {
			t.Errorf("FrameID() after reset = %d, %v", id, err)
		}
	})
}

func TestFrameBuilder_Status(t *testing.T) {
	tests := []struct {
		name string
		si   sampleInfo
		want framemonitor.FrameStatus
	}{
		{"complete", sampleInfo{offset: -1, size: 307200}, framemonitor.StatusComplete},
		{"corrupted", sampleInfo{offset: -1, size: 307200, corrupted: true}, framemonitor.StatusIncomplete},
		{"empty buffer", sampleInfo{offset: -1}, framemonitor.StatusTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b frameBuilder
			tt.si.video = vga
			st, err := b.build(tt.si).ReceiveStatus()
			if err != nil || st != tt.want {
				t.Errorf("ReceiveStatus() = %v, %v, want %v", st, err, tt.want)
			}
		})
	}
}

func TestFrameBuilder_Caps(t *testing.T) {
	var b frameBuilder

	f := b.build(sampleInfo{offset: -1, size: 1, video: vga})
	m := framemonitor.NewMonitor(framemonitor.DefaultMonitorConfig())
	r := m.Process(framemonitor.FrameEvent{Frame: f, Timestamp: 1}).Report
	if !r.WidthValid || !r.HeightValid || !r.FormatValid {
		t.Fatalf("unexpected unreadable fields in %v", r)
	}
	if r.Width != 640 || r.Height != 480 || r.Format != framemonitor.PixelFormatMono8 {
		t.Errorf("unexpected report %v", r)
	}

	// Caps without a format leave only that field unreadable
	f = b.build(sampleInfo{offset: -1, size: 1, video: videoInfo{width: 320, height: 240, hasWidth: true, hasHeight: true}})
	if _, err := f.PixelFormat(); !errors.Is(err, framemonitor.ErrFieldUnreadable) {
		t.Errorf("expected unreadable format, got %v", err)
	}
	if w, err := f.ImageWidth(); err != nil || w != 320 {
		t.Errorf("ImageWidth() = %d, %v", w, err)
	}

	// A format without a PFNC code is unreadable too
	f = b.build(sampleInfo{offset: -1, size: 1, video: videoInfo{format: "P010_10LE"}})
	if _, err := f.PixelFormat(); !errors.Is(err, framemonitor.ErrFieldUnreadable) {
		t.Errorf("expected unreadable format for P010_10LE, got %v", err)
	}

	// No caps at all make every caps-derived field unreadable
	f = b.build(sampleInfo{offset: -1, size: 1})
	for name, err := range map[string]error{
		"width":  second(f.ImageWidth()),
		"height": second(f.ImageHeight()),
		"format": second(f.PixelFormat()),
	} {
		if !errors.Is(err, framemonitor.ErrFieldUnreadable) {
			t.Errorf("%s: expected unreadable, got %v", name, err)
		}
	}
}

func TestReadCaps(t *testing.T) {
	initOnce.Do(func() { gst.Init(nil) })

	tests := []struct {
		name string
		caps string
		want videoInfo
	}{
		{"raw video", rawCaps, vga},
		{"rgb", "video/x-raw,format=RGB,width=1920,height=1080", videoInfo{width: 1920, height: 1080, format: "RGB", hasWidth: true, hasHeight: true}},
		{"no format", "video/x-raw, width=(int)320, height=(int)240", videoInfo{width: 320, height: 240, hasWidth: true, hasHeight: true}},
		{"only first structure", "video/x-raw, format=(string)YUY2, width=(int)800, height=(int)600; video/x-raw, format=(string)RGB", videoInfo{width: 800, height: 600, format: "YUY2", hasWidth: true, hasHeight: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := gst.NewCapsFromString(tt.caps)
			if caps == nil {
				t.Skipf("GStreamer could not parse caps %q", tt.caps)
			}
			if got := readCaps(caps); got != tt.want {
				t.Errorf("readCaps() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if got := readCaps(nil); got != (videoInfo{}) {
		t.Errorf("readCaps(nil) = %+v, want zero value", got)
	}
}

func TestSource_RestartAfterStop(t *testing.T) {
	s, err := New(Config{
		Pipeline: "videotestsrc is-live=true ! video/x-raw,format=GRAY8,width=64,height=48,framerate=30/1 ! appsink name=sink",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	run := func(round int) {
		got := make(chan framemonitor.Frame, 1)
		handler := func(f framemonitor.Frame) {
			select {
			case got <- f:
			default:
			}
			_ = s.QueueFrame(f)
		}
		if err := s.Start(context.Background(), handler); err != nil {
			t.Skipf("Skipping test: GStreamer not available: %v", err)
		}
		select {
		case <-s.Done():
			t.Fatalf("round %d: Done closed while running", round)
		default:
		}
		select {
		case f := <-got:
			if st, _ := f.ReceiveStatus(); st != framemonitor.StatusComplete {
				t.Errorf("round %d: status = %v, want Complete", round, st)
			}
			if w, err := f.ImageWidth(); err != nil || w != 64 {
				t.Errorf("round %d: ImageWidth() = %d, %v", round, w, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: no frame delivered", round)
		}
		done := s.Done()
		if err := s.Stop(); err != nil {
			t.Fatalf("round %d: Stop: %v", round, err)
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: Done not closed after Stop", round)
		}
	}

	run(1)
	run(2)
}

func TestQueueFrame_Errors(t *testing.T) {
	s, err := New(Config{Pipeline: "videotestsrc ! appsink name=sink", Buffers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.QueueFrame(nil); err != nil {
		t.Errorf("nil frame must be accepted, got %v", err)
	}
	if err := s.QueueFrame(&framemonitor.Snapshot{}); !errors.Is(err, ErrForeignFrame) {
		t.Errorf("expected ErrForeignFrame, got %v", err)
	}

	var released int
	f := s.builder.build(sampleInfo{offset: -1, size: 1, video: vga})
	f.owner = s
	f.release = func() { released++ }
	s.inflight <- struct{}{}

	if err := s.QueueFrame(f); err != nil {
		t.Fatalf("QueueFrame: %v", err)
	}
	if err := s.QueueFrame(f); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("expected ErrAlreadyQueued, got %v", err)
	}
	if released != 1 || len(s.inflight) != 0 {
		t.Errorf("released=%d inflight=%d", released, len(s.inflight))
	}
	if st := s.Stats(); st.Requeued != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func second[T any](_ T, err error) error { return err }
