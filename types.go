package framemonitor

import (
	"fmt"
	"strconv"
	"strings"
)

// FrameStatus is the completion status reported by the acquisition layer.
type FrameStatus int

const (
	// StatusComplete means the frame data arrived intact
	StatusComplete FrameStatus = iota
	// StatusIncomplete means some packets of the frame were lost
	StatusIncomplete
	// StatusTooSmall means the buffer was too small for the frame
	StatusTooSmall
	// StatusInvalid means the frame data is unusable
	StatusInvalid
	// StatusUnknown is any status the acquisition layer could not classify
	StatusUnknown
)

// String returns the display text for the status.
func (s FrameStatus) String() string {
	switch s {
	case StatusComplete:
		return "Complete"
	case StatusIncomplete:
		return "Incomplete"
	case StatusTooSmall:
		return "Too small"
	case StatusInvalid:
		return "Invalid"
	default:
		return "unknown frame status"
	}
}

// PixelFormat is a GenICam PFNC pixel format code.
type PixelFormat uint32

// Common PFNC codes.
const (
	PixelFormatMono8      PixelFormat = 0x01080001
	PixelFormatMono10     PixelFormat = 0x01100003
	PixelFormatMono12     PixelFormat = 0x01100005
	PixelFormatMono16     PixelFormat = 0x01100007
	PixelFormatBayerGR8   PixelFormat = 0x01080008
	PixelFormatBayerRG8   PixelFormat = 0x01080009
	PixelFormatBayerGB8   PixelFormat = 0x0108000A
	PixelFormatBayerBG8   PixelFormat = 0x0108000B
	PixelFormatRGB8       PixelFormat = 0x02180014
	PixelFormatBGR8       PixelFormat = 0x02180015
	PixelFormatRGBa8      PixelFormat = 0x02200016
	PixelFormatBGRa8      PixelFormat = 0x02200017
	PixelFormatYUV422_8   PixelFormat = 0x02100032
	PixelFormatYCbCr411_8 PixelFormat = 0x020C005A
)

// String returns the code in hexadecimal, e.g. "0x1080001".
func (p PixelFormat) String() string {
	return fmt.Sprintf("0x%x", uint32(p))
}

// gstFormatNames maps GStreamer raw video format names to PFNC codes.
var gstFormatNames = map[string]PixelFormat{
	"GRAY8":     PixelFormatMono8,
	"GRAY16_LE": PixelFormatMono16,
	"RGB":       PixelFormatRGB8,
	"BGR":       PixelFormatBGR8,
	"RGBA":      PixelFormatRGBa8,
	"RGBX":      PixelFormatRGBa8,
	"BGRA":      PixelFormatBGRa8,
	"BGRX":      PixelFormatBGRa8,
	"YUY2":      PixelFormatYUV422_8,
	"NV12":      PixelFormatYCbCr411_8,
	"I420":      PixelFormatYCbCr411_8,
}

// PixelFormatFromName maps a GStreamer format name ("RGB", "GRAY8", ...) to
// its PFNC code. The lookup is case-insensitive.
func PixelFormatFromName(name string) (PixelFormat, bool) {
	p, ok := gstFormatNames[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// ParsePixelFormat parses a PFNC code written in hex ("0x01080001") or as a
// GStreamer format name ("GRAY8").
func ParsePixelFormat(s string) (PixelFormat, error) {
	s = strings.TrimSpace(s)
	if p, ok := PixelFormatFromName(s); ok {
		return p, nil
	}
	hex, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok {
		return 0, fmt.Errorf("frame-monitor: invalid pixel format %q", s)
	}
	code, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("frame-monitor: invalid pixel format %q: %w", s, err)
	}
	return PixelFormat(code), nil
}

// Frame is one frame-arrival event as exposed by the acquisition layer.
//
// Every accessor may fail; failures are reported as *FieldError and are
// never fatal to the monitor.
type Frame interface {
	FrameID() (uint64, error)
	ReceiveStatus() (FrameStatus, error)
	ImageWidth() (uint32, error)
	ImageHeight() (uint32, error)
	PixelFormat() (PixelFormat, error)
}

// FrameEvent pairs a frame with its monotonic arrival time in seconds.
//
// The timestamp is read by the caller (see Clock) so the monitor itself never
// touches a clock.
type FrameEvent struct {
	Frame     Frame
	Timestamp float64
}

// Snapshot is a Frame backed by plain values. Fields listed in Unreadable
// fail with a *FieldError when read.
type Snapshot struct {
	ID         uint64
	Status     FrameStatus
	Width      uint32
	Height     uint32
	Format     PixelFormat
	Unreadable Field
}

var _ Frame = (*Snapshot)(nil)

func (s *Snapshot) FrameID() (uint64, error) {
	if s.Unreadable.Has(FieldID) {
		return 0, unreadable(FieldID)
	}
	return s.ID, nil
}

func (s *Snapshot) ReceiveStatus() (FrameStatus, error) {
	if s.Unreadable.Has(FieldStatus) {
		return StatusUnknown, unreadable(FieldStatus)
	}
	return s.Status, nil
}

func (s *Snapshot) ImageWidth() (uint32, error) {
	if s.Unreadable.Has(FieldWidth) {
		return 0, unreadable(FieldWidth)
	}
	return s.Width, nil
}

func (s *Snapshot) ImageHeight() (uint32, error) {
	if s.Unreadable.Has(FieldHeight) {
		return 0, unreadable(FieldHeight)
	}
	return s.Height, nil
}

func (s *Snapshot) PixelFormat() (PixelFormat, error) {
	if s.Unreadable.Has(FieldFormat) {
		return 0, unreadable(FieldFormat)
	}
	return s.Format, nil
}

// Verbosity selects when the monitor emits detailed reports.
type Verbosity int

const (
	// VerbosityOnAnomaly emits Detailed only when a force condition triggers
	VerbosityOnAnomaly Verbosity = iota
	// VerbosityAlwaysShow emits Detailed for every event
	VerbosityAlwaysShow
)

func (v Verbosity) String() string {
	switch v {
	case VerbosityAlwaysShow:
		return "always_show"
	default:
		return "on_anomaly"
	}
}

// ParseVerbosity accepts "on_anomaly" or "always_show" (also "auto"/"show").
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on_anomaly", "auto":
		return VerbosityOnAnomaly, nil
	case "always_show", "show":
		return VerbosityAlwaysShow, nil
	default:
		return VerbosityOnAnomaly, fmt.Errorf("frame-monitor: invalid verbosity %q (must be on_anomaly or always_show)", s)
	}
}
