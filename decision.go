package framemonitor

import (
	"fmt"
	"strings"
)

// DecisionKind tags the outcome of processing one event.
type DecisionKind int

const (
	// Heartbeat indicates normal, unremarkable processing
	Heartbeat DecisionKind = iota
	// Detailed indicates a full diagnostic report is warranted
	Detailed
)

func (k DecisionKind) String() string {
	if k == Detailed {
		return "detailed"
	}
	return "heartbeat"
}

// Reason records why a decision was forced to Detailed. Values combine.
type Reason uint8

const (
	ReasonAlwaysShow Reason = 1 << iota
	ReasonIDUnreadable
	ReasonStatusUnreadable
	ReasonNotComplete
	ReasonTimingAnomaly
)

// Has reports whether r contains every bit of other.
func (r Reason) Has(other Reason) bool {
	return other != 0 && r&other == other
}

func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	for _, x := range []struct {
		bit  Reason
		name string
	}{
		{ReasonAlwaysShow, "always_show"},
		{ReasonIDUnreadable, "id_unreadable"},
		{ReasonStatusUnreadable, "status_unreadable"},
		{ReasonNotComplete, "not_complete"},
		{ReasonTimingAnomaly, "timing_anomaly"},
	} {
		if r.Has(x.bit) {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, "|")
}

// Report holds the diagnostic fields of one frame. Each value is paired with
// a validity flag; invalid values render as UnknownMarker.
//
// ID, Status and FPS are always filled. Width, Height and Format are only
// read from the frame for Detailed decisions.
type Report struct {
	ID          uint64
	IDValid     bool
	Status      FrameStatus
	StatusValid bool
	Width       uint32
	WidthValid  bool
	Height      uint32
	HeightValid bool
	Format      PixelFormat
	FormatValid bool
	FPS         float64
	FPSValid    bool
}

// String renders the report on one line:
//
//	Frame ID:42 Status:Complete Size:640x480 Format:0x1080001 FPS:29.97
func (r Report) String() string {
	return fmt.Sprintf("Frame ID:%s Status:%s Size:%sx%s Format:%s FPS:%s",
		FormatID(r.ID, r.IDValid),
		FormatStatus(r.Status, r.StatusValid),
		FormatDimension(r.Width, r.WidthValid),
		FormatDimension(r.Height, r.HeightValid),
		FormatPixelFormat(r.Format, r.FormatValid),
		FormatFPS(r.FPS, r.FPSValid),
	)
}

// Decision is the per-event outcome of Monitor.Process.
type Decision struct {
	Kind    DecisionKind
	Report  Report
	Reasons Reason
}

// IsDetailed reports whether the decision carries a full report.
func (d Decision) IsDetailed() bool { return d.Kind == Detailed }

// String renders HeartbeatMarker or the report line.
func (d Decision) String() string {
	if d.Kind == Detailed {
		return d.Report.String()
	}
	return HeartbeatMarker
}

// NoticeKind distinguishes out-of-band continuity notices.
type NoticeKind int

const (
	// NoticeMissingFrames reports a gap of one or more identifiers
	NoticeMissingFrames NoticeKind = iota
	// NoticeResync reports that continuity tracking restarted because the
	// identifier went backwards or jumped further than MaxGap
	NoticeResync
)

func (k NoticeKind) String() string {
	if k == NoticeResync {
		return "resync"
	}
	return "missing_frames"
}

// Notice is emitted through MonitorConfig.OnNotice before the decision for
// the triggering event is computed.
type Notice struct {
	Kind    NoticeKind
	Missing uint64
	PrevID  uint64
	ID      uint64
}

func (n Notice) String() string {
	if n.Kind == NoticeResync {
		return fmt.Sprintf("frame id jumped from %d to %d, resynchronizing", n.PrevID, n.ID)
	}
	return MissingFramesText(n.Missing)
}
