package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	framemonitor "github.com/qazerd/frame-monitor"
	"github.com/qazerd/frame-monitor/internal/fpsstats"
)

const namespace = "frame_monitor"

// reasonLabels are the per-bit values of the reason label.
var reasonLabels = []struct {
	bit   framemonitor.Reason
	label string
}{
	{framemonitor.ReasonAlwaysShow, "always_show"},
	{framemonitor.ReasonIDUnreadable, "id_unreadable"},
	{framemonitor.ReasonStatusUnreadable, "status_unreadable"},
	{framemonitor.ReasonNotComplete, "not_complete"},
	{framemonitor.ReasonTimingAnomaly, "timing_anomaly"},
}

// Collector is a framemonitor.Sink exporting monitor output as Prometheus
// metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	Decisions     *prometheus.CounterVec
	Reasons       *prometheus.CounterVec
	MissingFrames prometheus.Counter
	Notices       *prometheus.CounterVec
	FrameStatus   *prometheus.CounterVec
	FPS           prometheus.Gauge
	LastFrameID   prometheus.Gauge

	WindowFPSMean  prometheus.Gauge
	WindowFPSStd   prometheus.Gauge
	WindowJitter   prometheus.Gauge
	WindowStable   prometheus.Gauge
	SourceRestarts *prometheus.CounterVec
	Info           *prometheus.GaugeVec
}

var _ framemonitor.Sink = (*Collector)(nil)

// NewCollector registers all metrics for streamID on a fresh registry,
// together with the Go and process collectors.
func NewCollector(streamID string) *Collector {
	constLabels := prometheus.Labels{"stream": streamID}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "decisions_total",
		Help:        "Frame decisions by kind (heartbeat, detailed)",
		ConstLabels: constLabels,
	}, []string{"kind"})

	c.Reasons = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "detailed_reasons_total",
		Help:        "Conditions that forced a detailed report",
		ConstLabels: constLabels,
	}, []string{"reason"})

	c.MissingFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "missing_frames_total",
		Help:        "Frames inferred missing from identifier gaps",
		ConstLabels: constLabels,
	})

	c.Notices = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "notices_total",
		Help:        "Continuity notices by kind (missing_frames, resync)",
		ConstLabels: constLabels,
	}, []string{"kind"})

	c.FrameStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "frame_status_total",
		Help:        "Receive status of detailed frames",
		ConstLabels: constLabels,
	}, []string{"status"})

	c.FPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "fps",
		Help:        "Last instantaneous frame rate",
		ConstLabels: constLabels,
	})

	c.LastFrameID = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "last_frame_id",
		Help:        "Last readable frame identifier",
		ConstLabels: constLabels,
	})

	c.WindowFPSMean = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "window_fps_mean",
		Help:        "Mean frame rate over the last summary window",
		ConstLabels: constLabels,
	})

	c.WindowFPSStd = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "window_fps_stddev",
		Help:        "Frame rate standard deviation over the last summary window",
		ConstLabels: constLabels,
	})

	c.WindowJitter = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "window_jitter_seconds",
		Help:        "Mean inter-frame jitter over the last summary window",
		ConstLabels: constLabels,
	})

	c.WindowStable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "window_stable",
		Help:        "1 when the last summary window had a stable cadence",
		ConstLabels: constLabels,
	})

	c.SourceRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "source_restarts_total",
		Help:        "Acquisition restarts by error category",
		ConstLabels: constLabels,
	}, []string{"category"})

	c.Info = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "info",
		Help:        "Monitor run information",
		ConstLabels: constLabels,
	}, []string{"version", "session_id", "verbosity"})

	c.registry.MustRegister(
		c.Decisions,
		c.Reasons,
		c.MissingFrames,
		c.Notices,
		c.FrameStatus,
		c.FPS,
		c.LastFrameID,
		c.WindowFPSMean,
		c.WindowFPSStd,
		c.WindowJitter,
		c.WindowStable,
		c.SourceRestarts,
		c.Info,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry holding the collector metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns the Prometheus metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetInfo publishes the run information gauge.
func (c *Collector) SetInfo(version, sessionID string, verbosity framemonitor.Verbosity) {
	c.Info.WithLabelValues(version, sessionID, verbosity.String()).Set(1)
}

func (c *Collector) Decision(d framemonitor.Decision) {
	c.Decisions.WithLabelValues(d.Kind.String()).Inc()

	r := d.Report
	if r.IDValid {
		c.LastFrameID.Set(float64(r.ID))
	}
	if r.FPSValid {
		c.FPS.Set(r.FPS)
	}

	if d.Kind != framemonitor.Detailed {
		return
	}
	for _, rl := range reasonLabels {
		if d.Reasons.Has(rl.bit) {
			c.Reasons.WithLabelValues(rl.label).Inc()
		}
	}
	status := "unreadable"
	if r.StatusValid {
		status = statusLabel(r.Status)
	}
	c.FrameStatus.WithLabelValues(status).Inc()
}

func (c *Collector) Notice(n framemonitor.Notice) {
	c.Notices.WithLabelValues(n.Kind.String()).Inc()
	if n.Kind == framemonitor.NoticeMissingFrames {
		c.MissingFrames.Add(float64(n.Missing))
	}
}

// ObserveWindow records a cadence summary.
func (c *Collector) ObserveWindow(s fpsstats.Stats) {
	c.WindowFPSMean.Set(s.FPSMean)
	c.WindowFPSStd.Set(s.FPSStdDev)
	c.WindowJitter.Set(s.JitterMean)
	if s.IsStable {
		c.WindowStable.Set(1)
	} else {
		c.WindowStable.Set(0)
	}
}

// SourceRestarted counts one acquisition restart.
func (c *Collector) SourceRestarted(category string) {
	c.SourceRestarts.WithLabelValues(category).Inc()
}

// statusLabel turns "Too small" into "too_small".
func statusLabel(s framemonitor.FrameStatus) string {
	return strings.ReplaceAll(strings.ToLower(s.String()), " ", "_")
}
