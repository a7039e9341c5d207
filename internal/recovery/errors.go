package recovery

import "strings"

// Category classifies acquisition errors for logs and restart decisions.
type Category int

const (
	// CategoryNetwork indicates connection, timeout or DNS failures
	CategoryNetwork Category = iota
	// CategoryCodec indicates negotiation, decode or format failures
	CategoryCodec
	// CategoryAuth indicates authentication or authorization failures
	CategoryAuth
	// CategoryResource indicates a missing or busy device
	CategoryResource
	// CategoryUnknown indicates unclassified errors
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	case CategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Retryable reports whether restarting the source may clear the error.
// Codec and auth failures repeat on every restart.
func (c Category) Retryable() bool {
	return c != CategoryCodec && c != CategoryAuth
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password", "username",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps",
		"h264", "h265", "mjpeg", "jpeg", "not negotiated", "no decoder",
		"missing plugin",
	}
	resourceKeywords = []string{
		"device", "busy", "permission denied", "no such file",
		"could not open", "v4l2", "camera",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network",
		"dns", "resolve", "socket", "tcp", "udp", "rtsp", "not found",
		"could not connect", "failed to connect",
	}
)

// Classify categorizes an error from its message and debug text.
//
// Priority: auth, codec, resource, network. Keywords are matched
// case-insensitively against both strings.
func Classify(msg, debug string) Category {
	combined := strings.ToLower(msg + " " + debug)
	if strings.TrimSpace(combined) == "" {
		return CategoryUnknown
	}

	switch {
	case containsAny(combined, authKeywords):
		return CategoryAuth
	case containsAny(combined, codecKeywords):
		return CategoryCodec
	case containsAny(combined, resourceKeywords):
		return CategoryResource
	case containsAny(combined, networkKeywords):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
