package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	framemonitor "github.com/qazerd/frame-monitor"
	"github.com/qazerd/frame-monitor/internal/fpsstats"
)

func TestCollector_Decisions(t *testing.T) {
	c := NewCollector("cam-1")

	c.Decision(framemonitor.Decision{
		Kind:   framemonitor.Heartbeat,
		Report: framemonitor.Report{ID: 10, IDValid: true, FPS: 30, FPSValid: true},
	})
	c.Decision(framemonitor.Decision{
		Kind:    framemonitor.Detailed,
		Reasons: framemonitor.ReasonNotComplete | framemonitor.ReasonTimingAnomaly,
		Report: framemonitor.Report{
			ID:          11,
			IDValid:     true,
			Status:      framemonitor.StatusTooSmall,
			StatusValid: true,
		},
	})
	c.Decision(framemonitor.Decision{
		Kind:    framemonitor.Detailed,
		Reasons: framemonitor.ReasonIDUnreadable | framemonitor.ReasonStatusUnreadable,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Decisions.WithLabelValues("heartbeat")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Decisions.WithLabelValues("detailed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Reasons.WithLabelValues("not_complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Reasons.WithLabelValues("timing_anomaly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Reasons.WithLabelValues("id_unreadable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Reasons.WithLabelValues("always_show")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FrameStatus.WithLabelValues("too_small")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FrameStatus.WithLabelValues("unreadable")))
	assert.Equal(t, 11.0, testutil.ToFloat64(c.LastFrameID))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.FPS), "invalid FPS must not overwrite the gauge")
}

func TestCollector_Notices(t *testing.T) {
	c := NewCollector("cam-1")

	c.Notice(framemonitor.Notice{Kind: framemonitor.NoticeMissingFrames, Missing: 3})
	c.Notice(framemonitor.Notice{Kind: framemonitor.NoticeMissingFrames, Missing: 1})
	c.Notice(framemonitor.Notice{Kind: framemonitor.NoticeResync, PrevID: 9, ID: 1})

	assert.Equal(t, 4.0, testutil.ToFloat64(c.MissingFrames))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Notices.WithLabelValues("missing_frames")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Notices.WithLabelValues("resync")))
}

func TestCollector_WindowAndRestarts(t *testing.T) {
	c := NewCollector("cam-1")

	c.ObserveWindow(fpsstats.Calculate([]float64{0.05, 0.05, 0.05, 0.05}))
	assert.InDelta(t, 20.0, testutil.ToFloat64(c.WindowFPSMean), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WindowStable))

	c.ObserveWindow(fpsstats.Stats{})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.WindowStable))

	c.SourceRestarted("network")
	c.SourceRestarted("network")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.SourceRestarts.WithLabelValues("network")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("cam-1")
	c.SetInfo("v1.0.0", "session-1", framemonitor.VerbosityOnAnomaly)
	c.Notice(framemonitor.Notice{Kind: framemonitor.NoticeMissingFrames, Missing: 2})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `frame_monitor_missing_frames_total{stream="cam-1"} 2`)
	assert.Contains(t, text, `session_id="session-1"`)
	assert.Contains(t, text, "go_goroutines")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "complete", statusLabel(framemonitor.StatusComplete))
	assert.Equal(t, "too_small", statusLabel(framemonitor.StatusTooSmall))
	assert.Equal(t, "unknown_frame_status", statusLabel(framemonitor.StatusUnknown))
}
