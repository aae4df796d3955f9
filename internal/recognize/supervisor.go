package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HowDiggy/signconnect/internal/observe"
	"github.com/HowDiggy/signconnect/pkg/provider/stt"
)

// Transcript event kinds emitted by the Supervisor.
const (
	KindInterim = "interim"
	KindFinal   = "final"
)

// Default supervisor timings.
const (
	// DefaultInactivityTimeout is how long a session may go without audio
	// before it is proactively cycled. Cloud recognizers bill and eventually
	// kill idle streams, so the supervisor gets ahead of them.
	DefaultInactivityTimeout = 30 * time.Second

	// DefaultRestartBackoff is the pause before opening a replacement
	// session after a transient failure.
	DefaultRestartBackoff = time.Second

	// DefaultMaxRestarts caps consecutive transient-error restarts that
	// produced no transcript events. The counter resets whenever a session
	// makes progress; inactivity cycles never count against it.
	DefaultMaxRestarts = 10
)

// errEndOfStream signals internally that the audio queue is exhausted and the
// final session flush has completed.
var errEndOfStream = errors.New("recognize: supervisor end of stream")

// errInactivity signals internally that a session was cycled for idleness.
var errInactivity = errors.New("recognize: session inactive")

// Event is one ordered transcript event. Interim events carry provisional
// text that later events may revise; final events are authoritative.
type Event struct {
	Kind       string
	Text       string
	Confidence float64
}

// Config configures a Supervisor.
type Config struct {
	// Provider opens STT sessions. Required.
	Provider stt.Provider

	// Stream is passed to every StartStream call.
	Stream stt.StreamConfig

	// Queue is the audio source. Required.
	Queue *Queue

	// InactivityTimeout cycles the session after this long without audio.
	// Zero means DefaultInactivityTimeout.
	InactivityTimeout time.Duration

	// RestartBackoff is the pause before reopening after a transient
	// failure. Zero means DefaultRestartBackoff.
	RestartBackoff time.Duration

	// MaxRestarts caps consecutive no-progress transient-error restarts.
	// Zero means DefaultMaxRestarts.
	MaxRestarts int

	// Logger receives restart and teardown logs. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics records restart counters. May be nil.
	Metrics *observe.Metrics
}

// Supervisor owns the streaming recognition lifecycle for one connection. It
// feeds audio from the queue into provider sessions and republishes their
// transcripts on a single ordered Events channel. Session restarts, whether
// from transient provider errors or inactivity, are invisible to the
// consumer: the Events channel lives across them.
type Supervisor struct {
	cfg    Config
	events chan Event
}

// NewSupervisor validates cfg, applies defaults, and returns a Supervisor
// ready for Run.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Provider == nil {
		return nil, errors.New("recognize: Config.Provider is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("recognize: Config.Queue is required")
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = DefaultRestartBackoff
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		events: make(chan Event, 16),
	}, nil
}

// Events returns the ordered transcript event channel. It is closed when Run
// returns, never earlier.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Run drives recognition until the audio stream ends, ctx is cancelled, or a
// fatal error occurs. It closes the Events channel on return.
//
// A nil return means the queue was drained to its end of stream and all
// pending transcripts were flushed to Events.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)

	restarts := 0
	for {
		progress, err := s.runSession(ctx)
		if progress {
			restarts = 0
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil || errors.Is(err, errEndOfStream):
			return nil
		case errors.Is(err, errInactivity):
			// Idle cycling is routine housekeeping. A silent connection
			// stays up indefinitely, so the restart budget does not apply.
			restarts = 0
			s.cfg.Logger.Debug("cycling idle recognition session")
			s.cfg.Metrics.RecordSessionRestart(ctx, "inactivity")
		case errors.Is(err, stt.ErrTransient):
			restarts++
			if restarts > s.cfg.MaxRestarts {
				return fmt.Errorf("recognize: giving up after %d restarts: %w", restarts-1, err)
			}
			s.cfg.Logger.Info("restarting recognition session",
				"reason", "transient", "attempt", restarts, "error", err)
			s.cfg.Metrics.RecordSessionRestart(ctx, "transient")
		default:
			return err
		}

		select {
		case <-time.After(s.cfg.RestartBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runSession runs one provider session to completion. progress reports
// whether any transcript event was emitted, which resets the restart budget.
func (s *Supervisor) runSession(ctx context.Context) (progress bool, err error) {
	sess, err := s.cfg.Provider.StartStream(ctx, s.cfg.Stream)
	if err != nil {
		return false, fmt.Errorf("%w: start session: %v", stt.ErrTransient, err)
	}

	var (
		sawEOS  atomic.Bool
		emitted atomic.Bool
	)

	g, gctx := errgroup.WithContext(ctx)

	// Feed audio from the queue into the session. Closing the session on
	// every exit path unblocks the listener by closing Results.
	g.Go(func() error {
		for {
			popCtx, cancel := context.WithTimeout(gctx, s.cfg.InactivityTimeout)
			frame, err := s.cfg.Queue.Pop(popCtx)
			cancel()

			switch {
			case errors.Is(err, ErrEndOfStream):
				sawEOS.Store(true)
				_ = sess.Close()
				return nil
			case errors.Is(err, context.DeadlineExceeded) && gctx.Err() == nil:
				_ = sess.Close()
				return errInactivity
			case err != nil:
				// gctx went down; the listener's error, if any, wins.
				_ = sess.Close()
				return nil
			}

			if err := sess.SendAudio(frame); err != nil {
				// The read side will surface the terminal stream error.
				_ = sess.Close()
				return nil
			}
		}
	})

	// Forward transcripts until the session ends.
	g.Go(func() error {
		for t := range sess.Results() {
			if t.Text == "" {
				continue
			}
			kind := KindInterim
			if t.IsFinal {
				kind = KindFinal
			}
			emitted.Store(true)
			select {
			case s.events <- Event{Kind: kind, Text: t.Text, Confidence: t.Confidence}:
			case <-ctx.Done():
				_ = sess.Close()
				return ctx.Err()
			}
		}

		if err := sess.Err(); err != nil {
			return err
		}
		if sawEOS.Load() {
			return errEndOfStream
		}
		if gctx.Err() == nil {
			// The session ended cleanly with audio still flowing; reopen.
			return fmt.Errorf("%w: session ended early", stt.ErrTransient)
		}
		return nil
	})

	err = g.Wait()
	return emitted.Load(), err
}
