package emitter

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	framemonitor "github.com/qazerd/frame-monitor"
)

// Message kinds
const (
	KindReport        = "report"
	KindMissingFrames = "missing_frames"
	KindResync        = "resync"
)

// Message is the payload published for detailed reports and notices.
// Unreadable report fields are omitted.
type Message struct {
	TraceID     string `json:"trace_id" msgpack:"trace_id"`
	StreamID    string `json:"stream_id" msgpack:"stream_id"`
	SessionID   string `json:"session_id" msgpack:"session_id"`
	Kind        string `json:"kind" msgpack:"kind"`
	TimestampMs int64  `json:"timestamp_ms" msgpack:"timestamp_ms"`

	// Report fields
	FrameID     *uint64  `json:"frame_id,omitempty" msgpack:"frame_id,omitempty"`
	Status      string   `json:"status,omitempty" msgpack:"status,omitempty"`
	Width       *uint32  `json:"width,omitempty" msgpack:"width,omitempty"`
	Height      *uint32  `json:"height,omitempty" msgpack:"height,omitempty"`
	PixelFormat string   `json:"pixel_format,omitempty" msgpack:"pixel_format,omitempty"`
	FPS         *float64 `json:"fps,omitempty" msgpack:"fps,omitempty"`
	Reasons     string   `json:"reasons,omitempty" msgpack:"reasons,omitempty"`
	Line        string   `json:"line,omitempty" msgpack:"line,omitempty"`

	// Notice fields
	Missing uint64 `json:"missing,omitempty" msgpack:"missing,omitempty"`
	PrevID  uint64 `json:"prev_id,omitempty" msgpack:"prev_id,omitempty"`
	ID      uint64 `json:"id,omitempty" msgpack:"id,omitempty"`
}

// reportMessage fills the report fields of a detailed decision.
func reportMessage(d framemonitor.Decision) Message {
	r := d.Report
	m := Message{
		Kind:    KindReport,
		Reasons: d.Reasons.String(),
		Line:    r.String(),
	}
	if r.IDValid {
		id := r.ID
		m.FrameID = &id
	}
	if r.StatusValid {
		m.Status = r.Status.String()
	}
	if r.WidthValid {
		w := r.Width
		m.Width = &w
	}
	if r.HeightValid {
		h := r.Height
		m.Height = &h
	}
	if r.FormatValid {
		m.PixelFormat = r.Format.String()
	}
	if r.FPSValid {
		fps := r.FPS
		m.FPS = &fps
	}
	return m
}

func noticeMessage(n framemonitor.Notice) Message {
	m := Message{
		Kind:   KindMissingFrames,
		PrevID: n.PrevID,
		ID:     n.ID,
		Line:   n.String(),
	}
	if n.Kind == framemonitor.NoticeResync {
		m.Kind = KindResync
	} else {
		m.Missing = n.Missing
	}
	return m
}

// Encode serializes m as "json" or "msgpack".
func Encode(m Message, encoding string) ([]byte, error) {
	switch encoding {
	case "", "json":
		return json.Marshal(m)
	case "msgpack":
		return msgpack.Marshal(&m)
	default:
		return nil, fmt.Errorf("mqtt: unsupported encoding %q", encoding)
	}
}

// Decode is the inverse of Encode.
func Decode(data []byte, encoding string) (Message, error) {
	var m Message
	var err error
	switch encoding {
	case "", "json":
		err = json.Unmarshal(data, &m)
	case "msgpack":
		err = msgpack.Unmarshal(data, &m)
	default:
		err = fmt.Errorf("mqtt: unsupported encoding %q", encoding)
	}
	return m, err
}
