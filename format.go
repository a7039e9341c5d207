package framemonitor

import (
	"strconv"
)

// UnknownMarker replaces any value that could not be read or computed.
const UnknownMarker = "?"

// HeartbeatMarker is the terse output for an unremarkable frame.
const HeartbeatMarker = "."

// FormatStatus returns the display text for a status, or UnknownMarker when
// the status could not be read.
func FormatStatus(s FrameStatus, ok bool) string {
	if !ok {
		return UnknownMarker
	}
	return s.String()
}

// FormatID returns the decimal identifier or UnknownMarker.
func FormatID(id uint64, ok bool) string {
	if !ok {
		return UnknownMarker
	}
	return strconv.FormatUint(id, 10)
}

// FormatDimension returns a width or height or UnknownMarker.
func FormatDimension(v uint32, ok bool) string {
	if !ok {
		return UnknownMarker
	}
	return strconv.FormatUint(uint64(v), 10)
}

// FormatPixelFormat returns the hex code or UnknownMarker.
func FormatPixelFormat(p PixelFormat, ok bool) string {
	if !ok {
		return UnknownMarker
	}
	return p.String()
}

// FormatFPS returns the rate with two decimals or UnknownMarker.
func FormatFPS(fps float64, ok bool) string {
	if !ok {
		return UnknownMarker
	}
	return strconv.FormatFloat(fps, 'f', 2, 64)
}

// MissingFramesText renders a gap notice with singular/plural phrasing.
func MissingFramesText(missing uint64) string {
	if missing == 1 {
		return "1 missing frame detected"
	}
	return strconv.FormatUint(missing, 10) + " missing frames detected"
}
