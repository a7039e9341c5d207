package gstsource

import (
	"errors"
	"fmt"
	"sync/atomic"

	framemonitor "github.com/qazerd/frame-monitor"
)

var errNotInCaps = errors.New("gstsource: field not present in caps")

// Frame is one appsink sample as seen by the monitor. The underlying
// sample stays referenced until the frame is requeued.
type Frame struct {
	id     uint64
	idErr  error
	status framemonitor.FrameStatus
	video  videoInfo

	owner   *Source
	release func()
	queued  atomic.Bool
}

var _ framemonitor.Frame = (*Frame)(nil)

func (f *Frame) FrameID() (uint64, error) {
	if f.idErr != nil {
		return 0, &framemonitor.FieldError{Field: framemonitor.FieldID, Err: f.idErr}
	}
	return f.id, nil
}

func (f *Frame) ReceiveStatus() (framemonitor.FrameStatus, error) {
	return f.status, nil
}

func (f *Frame) ImageWidth() (uint32, error) {
	if !f.video.hasWidth {
		return 0, &framemonitor.FieldError{Field: framemonitor.FieldWidth, Err: errNotInCaps}
	}
	return f.video.width, nil
}

func (f *Frame) ImageHeight() (uint32, error) {
	if !f.video.hasHeight {
		return 0, &framemonitor.FieldError{Field: framemonitor.FieldHeight, Err: errNotInCaps}
	}
	return f.video.height, nil
}

func (f *Frame) PixelFormat() (framemonitor.PixelFormat, error) {
	if f.video.format == "" {
		return 0, &framemonitor.FieldError{Field: framemonitor.FieldFormat, Err: errNotInCaps}
	}
	p, ok := framemonitor.PixelFormatFromName(f.video.format)
	if !ok {
		return 0, &framemonitor.FieldError{
			Field: framemonitor.FieldFormat,
			Err:   fmt.Errorf("gstsource: no PFNC code for format %q", f.video.format),
		}
	}
	return p, nil
}

// videoInfo holds the fields read from the first structure of the sample
// caps (see readCaps).
type videoInfo struct {
	width     uint32
	height    uint32
	format    string
	hasWidth  bool
	hasHeight bool
}

// sampleInfo is what the appsink callback extracts from a sample.
type sampleInfo struct {
	offset    int64 // -1 when the buffer carries no offset
	corrupted bool
	size      int
	video     videoInfo
}

// frameBuilder turns sample metadata into frames. Identifiers come from the
// buffer offset when the pipeline sets one, otherwise from a sample counter.
type frameBuilder struct {
	counter   uint64
	useOffset bool
}

func (b *frameBuilder) build(si sampleInfo) *Frame {
	seq := b.counter
	b.counter++

	f := &Frame{video: si.video}

	switch {
	case si.offset >= 0:
		b.useOffset = true
		f.id = uint64(si.offset)
	case b.useOffset:
		// The pipeline stopped stamping offsets mid-stream
		f.idErr = errNoOffset
	default:
		f.id = seq
	}

	switch {
	case si.corrupted:
		f.status = framemonitor.StatusIncomplete
	case si.size == 0:
		f.status = framemonitor.StatusTooSmall
	default:
		f.status = framemonitor.StatusComplete
	}
	return f
}

// reset restarts identifier numbering, e.g. after a pipeline restart.
func (b *frameBuilder) reset() {
	*b = frameBuilder{}
}
