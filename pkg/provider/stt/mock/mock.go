// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig, and to hand out a fresh scripted Session per StartStream call.
// Use Session to feed controlled Transcript values and inspect which audio
// frames were delivered.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.Emit(types.Transcript{Text: "hello", IsFinal: true})
//	sess.Finish(nil)
package mock

import (
	"context"
	"sync"

	"github.com/HowDiggy/signconnect/pkg/provider/stt"
	"github.com/HowDiggy/signconnect/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by every StartStream call. If
	// nil, StartStream consults Sessions, then falls back to a fresh default
	// Session.
	Session stt.SessionHandle

	// Sessions are returned in order, one per StartStream call. Useful for
	// scripting restart scenarios where each attempt behaves differently.
	Sessions []stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the configured session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	if n := len(p.StartStreamCalls) - 1; n < len(p.Sessions) {
		return p.Sessions[n], nil
	}
	return NewSession(), nil
}

// Calls returns a snapshot of the recorded StartStream calls. Thread-safe.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StartStreamCall(nil), p.StartStreamCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Frame is a copy of the audio bytes that were passed to SendAudio.
	Frame []byte
}

// Session is a scripted mock implementation of stt.SessionHandle.
//
// Tests drive the session from the outside: Emit pushes transcripts to the
// consumer, Finish closes the results channel with a terminal error. The
// session also terminates when the consumer calls Close.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned from every SendAudio call.
	SendAudioErr error

	// SendAudioCalls records every call to SendAudio.
	SendAudioCalls []SendAudioCall

	// CloseCalls counts how many times Close was called.
	CloseCalls int

	results    chan types.Transcript
	finishOnce sync.Once
	err        error
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with a buffered results channel ready for Emit.
func NewSession() *Session {
	return &Session{results: make(chan types.Transcript, 16)}
}

// Emit delivers one transcript to the consumer. It must not be called after
// Finish or Close.
func (s *Session) Emit(t types.Transcript) {
	s.results <- t
}

// Finish terminates the session with the given error: the results channel is
// closed and Err will return err. Safe to call multiple times; only the first
// call takes effect.
func (s *Session) Finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.results)
	})
}

// SendAudio records the frame and returns SendAudioErr.
func (s *Session) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Frame: append([]byte(nil), frame...)})
	return s.SendAudioErr
}

// Results returns the scripted transcript channel.
func (s *Session) Results() <-chan types.Transcript { return s.results }

// Err returns the error passed to Finish, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close counts the call and finishes the session cleanly if Finish has not
// run yet.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()
	s.Finish(nil)
	return nil
}

// Frames returns a snapshot of all audio frames sent so far. Thread-safe.
func (s *Session) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := make([][]byte, len(s.SendAudioCalls))
	for i, c := range s.SendAudioCalls {
		frames[i] = c.Frame
	}
	return frames
}
