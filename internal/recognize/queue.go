// Package recognize implements the server side of the live transcription
// pipeline: a bounded audio ingestion queue and a supervisor that keeps a
// streaming STT session alive across provider restarts while emitting
// transcript events in order.
package recognize

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultQueueCapacity is the audio queue depth used when no capacity is
// configured. At typical browser MediaRecorder chunking (one frame every
// 250ms) this buffers over a minute of audio.
const DefaultQueueCapacity = 256

var (
	// ErrQueueClosed is returned by Push after CloseSend has been called.
	ErrQueueClosed = errors.New("recognize: queue closed")

	// ErrQueueFull is returned by Push when the queue is at capacity. The
	// frame is dropped; dropping stale audio is preferable to stalling the
	// websocket read loop.
	ErrQueueFull = errors.New("recognize: queue full")

	// ErrEndOfStream is returned by Pop once all frames pushed before
	// CloseSend have been consumed.
	ErrEndOfStream = errors.New("recognize: end of stream")
)

// Queue is a bounded FIFO of audio frames between the websocket read loop
// (producer) and the recognition supervisor (consumer).
//
// The producer signals end of stream with CloseSend; the consumer keeps
// receiving buffered frames and then gets ErrEndOfStream, so no audio that
// made it into the queue is lost at teardown.
type Queue struct {
	frames chan []byte
	eos    chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewQueue returns a Queue holding at most capacity frames. A non-positive
// capacity means DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		frames: make(chan []byte, capacity),
		eos:    make(chan struct{}),
	}
}

// Push enqueues one frame without blocking. Returns ErrQueueFull when the
// queue is at capacity (the frame is counted as dropped) and ErrQueueClosed
// after CloseSend.
func (q *Queue) Push(frame []byte) error {
	select {
	case <-q.eos:
		return ErrQueueClosed
	default:
	}

	select {
	case q.frames <- frame:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// CloseSend marks the end of the audio stream. Frames already queued remain
// poppable; once they are drained, Pop returns ErrEndOfStream. Safe to call
// multiple times.
func (q *Queue) CloseSend() {
	q.closeOnce.Do(func() {
		close(q.eos)
	})
}

// Pop dequeues the next frame, blocking until a frame arrives, the stream
// ends, or ctx is done. Buffered frames are always delivered before the end
// of stream is reported.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	// Prefer buffered frames over the end-of-stream signal.
	select {
	case frame := <-q.frames:
		return frame, nil
	default:
	}

	select {
	case frame := <-q.frames:
		return frame, nil
	case <-q.eos:
		select {
		case frame := <-q.frames:
			return frame, nil
		default:
			return nil, ErrEndOfStream
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped returns the number of frames discarded because the queue was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
