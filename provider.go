package framemonitor

import "context"

// Requeuer returns a consumed frame buffer to the acquisition queue.
//
// QueueFrame is called exactly once per delivered frame, including nil
// frames, whatever the monitor decided.
type Requeuer interface {
	QueueFrame(f Frame) error
}

// RequeueFunc adapts a function to Requeuer.
type RequeueFunc func(f Frame) error

func (fn RequeueFunc) QueueFrame(f Frame) error { return fn(f) }

// FrameHandler receives frames from a Source, one at a time.
type FrameHandler func(f Frame)

// Source is an acquisition layer delivering frames to a handler.
//
// Implementations must guarantee:
//   - Start returns once delivery is running (non-blocking)
//   - the handler is invoked from a single goroutine, in arrival order
//   - Stop is idempotent and returns after the last handler call
//   - every delivered frame is returned through QueueFrame by the consumer
type Source interface {
	Requeuer

	// Start begins delivering frames to handler until ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context, handler FrameHandler) error

	// Stop halts delivery and releases acquisition resources.
	Stop() error
}
