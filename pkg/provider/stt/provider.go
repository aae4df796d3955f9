// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service (Google Cloud
// Speech-to-Text or Deepgram) and exposes a uniform streaming interface. The
// central abstraction is SessionHandle: once opened, a session accepts binary
// audio frames and emits a single ordered stream of Transcript values:
// low-latency interim results interleaved with authoritative finals, in
// exactly the order the upstream service produced them.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/HowDiggy/signconnect/pkg/types"
)

// ErrTransient marks a session failure that the caller may recover from by
// opening a fresh session: upstream stream-duration limits, idle timeouts,
// and temporary service unavailability. Implementations wrap qualifying
// errors so that callers can test with errors.Is.
var ErrTransient = errors.New("transient stream failure")

// Audio encodings accepted by StreamConfig. Not every provider supports
// every encoding; see the provider's documentation.
const (
	// EncodingWebmOpus is Opus audio in a WebM container, as produced by the
	// browser MediaRecorder API. This is the wire format SignConnect clients
	// send, so it is the default.
	EncodingWebmOpus = "webm-opus"

	// EncodingLinear16 is uncompressed 16-bit signed little-endian PCM.
	EncodingLinear16 = "linear16"
)

// StreamConfig describes the audio format and recognition settings for a new
// STT session.
type StreamConfig struct {
	// Encoding is the audio container/codec, one of the Encoding* constants.
	// An empty string means EncodingWebmOpus.
	Encoding string

	// SampleRate is the audio sample rate in Hz. Browser Opus capture is
	// 48000; telephony PCM is typically 8000 or 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	Language string

	// Interim enables low-latency non-final results in addition to finals.
	Interim bool
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines and network connections inside the provider. All
// methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one binary audio frame to the provider. The frame
	// must match the encoding and sample rate agreed in StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(frame []byte) error

	// Results returns a read-only channel emitting Transcript values in the
	// exact order the upstream service produced them, interim and final
	// interleaved. The channel is closed when the session ends for any
	// reason; inspect Err afterwards to learn why.
	Results() <-chan types.Transcript

	// Err returns the error that terminated the session, or nil if the
	// session ended cleanly (Close was called, or the upstream finished
	// after the audio was flushed). Errors eligible for a session restart
	// satisfy errors.Is(err, ErrTransient). Err must only be called after
	// the Results channel has been closed.
	Err() error

	// Close flushes pending audio, terminates the session, and releases all
	// associated resources. After Close returns, the Results channel will be
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously (one per websocket connection).
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns
	// the handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
