package recognize_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/HowDiggy/signconnect/internal/recognize"
	"github.com/HowDiggy/signconnect/pkg/provider/stt"
	"github.com/HowDiggy/signconnect/pkg/provider/stt/mock"
	"github.com/HowDiggy/signconnect/pkg/types"
)

// startSupervisor runs sup in the background and returns a channel with the
// collected events (delivered once Events closes) and one with Run's error.
func startSupervisor(t *testing.T, ctx context.Context, sup *recognize.Supervisor) (<-chan []recognize.Event, <-chan error) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sup.Run(ctx)
	}()

	eventsCh := make(chan []recognize.Event, 1)
	go func() {
		var events []recognize.Event
		for ev := range sup.Events() {
			events = append(events, ev)
		}
		eventsCh <- events
	}()
	return eventsCh, errCh
}

// waitCalls polls until the provider has seen n StartStream calls.
func waitCalls(t *testing.T, p *mock.Provider, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.Calls()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("provider saw %d StartStream calls, want %d", len(p.Calls()), n)
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitEvents(t *testing.T, eventsCh <-chan []recognize.Event) []recognize.Event {
	t.Helper()
	select {
	case events := <-eventsCh:
		return events
	case <-time.After(2 * time.Second):
		t.Fatal("Events channel never closed")
		return nil
	}
}

func TestNewSupervisorValidation(t *testing.T) {
	if _, err := recognize.NewSupervisor(recognize.Config{Queue: recognize.NewQueue(1)}); err == nil {
		t.Error("NewSupervisor without provider should fail")
	}
	if _, err := recognize.NewSupervisor(recognize.Config{Provider: &mock.Provider{}}); err == nil {
		t.Error("NewSupervisor without queue should fail")
	}
}

func TestSupervisorForwardsEventsInOrder(t *testing.T) {
	sess := mock.NewSession()
	provider := &mock.Provider{Session: sess}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{Provider: provider, Queue: q})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	eventsCh, errCh := startSupervisor(t, context.Background(), sup)

	if err := q.Push([]byte("audio")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	sess.Emit(types.Transcript{Text: "hel"})
	sess.Emit(types.Transcript{Text: "hello"})
	sess.Emit(types.Transcript{}) // empty keep-alive, must be skipped
	sess.Emit(types.Transcript{Text: "hello world", IsFinal: true, Confidence: 0.95})

	q.CloseSend()

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := waitEvents(t, eventsCh)
	want := []recognize.Event{
		{Kind: recognize.KindInterim, Text: "hel"},
		{Kind: recognize.KindInterim, Text: "hello"},
		{Kind: recognize.KindFinal, Text: "hello world", Confidence: 0.95},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(events), events, len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}

	if len(sess.Frames()) != 1 {
		t.Errorf("session received %d frames, want 1", len(sess.Frames()))
	}
}

func TestSupervisorRestartsOnTransientError(t *testing.T) {
	s1 := mock.NewSession()
	s2 := mock.NewSession()
	provider := &mock.Provider{Sessions: []stt.SessionHandle{s1, s2}}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{
		Provider:       provider,
		Queue:          q,
		RestartBackoff: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	eventsCh, errCh := startSupervisor(t, context.Background(), sup)

	s1.Emit(types.Transcript{Text: "first", IsFinal: true})
	s1.Finish(fmt.Errorf("%w: stream reset", stt.ErrTransient))

	waitCalls(t, provider, 2)

	s2.Emit(types.Transcript{Text: "second", IsFinal: true})
	q.CloseSend()

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := waitEvents(t, eventsCh)
	if len(events) != 2 || events[0].Text != "first" || events[1].Text != "second" {
		t.Errorf("events = %+v, want first then second across the restart", events)
	}
}

func TestSupervisorStopsOnFatalError(t *testing.T) {
	sess := mock.NewSession()
	provider := &mock.Provider{Session: sess}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{Provider: provider, Queue: q})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	_, errCh := startSupervisor(t, context.Background(), sup)

	fatal := errors.New("permission denied")
	sess.Finish(fatal)

	if err := waitErr(t, errCh); !errors.Is(err, fatal) {
		t.Errorf("Run err = %v, want the fatal session error", err)
	}
	if calls := provider.Calls(); len(calls) != 1 {
		t.Errorf("provider saw %d calls, want no restart after a fatal error", len(calls))
	}
}

func TestSupervisorRestartsOnInactivity(t *testing.T) {
	s1 := mock.NewSession()
	s2 := mock.NewSession()
	provider := &mock.Provider{Sessions: []stt.SessionHandle{s1, s2}}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{
		Provider:          provider,
		Queue:             q,
		InactivityTimeout: 30 * time.Millisecond,
		RestartBackoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	_, errCh := startSupervisor(t, context.Background(), sup)

	// No audio: the first session must be cycled for idleness.
	waitCalls(t, provider, 2)

	q.CloseSend()
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s1.CloseCalls == 0 {
		t.Error("idle session was not closed")
	}
}

func TestSupervisorGivesUpAfterMaxRestarts(t *testing.T) {
	// A session that is already finished with a transient error makes every
	// attempt fail without progress.
	sess := mock.NewSession()
	sess.Finish(fmt.Errorf("%w: flapping", stt.ErrTransient))
	provider := &mock.Provider{Session: sess}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{
		Provider:       provider,
		Queue:          q,
		MaxRestarts:    2,
		RestartBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	_, errCh := startSupervisor(t, context.Background(), sup)

	err = waitErr(t, errCh)
	if !errors.Is(err, stt.ErrTransient) {
		t.Errorf("Run err = %v, want wrapped transient error", err)
	}
	if calls := provider.Calls(); len(calls) != 3 {
		t.Errorf("provider saw %d calls, want initial attempt plus 2 restarts", len(calls))
	}
}

func TestSupervisorInactivityCyclesDoNotExhaustRestartBudget(t *testing.T) {
	// Nil Session and empty Sessions make the provider hand out a fresh
	// session per attempt, so idle cycling can go on forever.
	provider := &mock.Provider{}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{
		Provider:          provider,
		Queue:             q,
		InactivityTimeout: 10 * time.Millisecond,
		RestartBackoff:    time.Millisecond,
		MaxRestarts:       2,
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	_, errCh := startSupervisor(t, context.Background(), sup)

	// A connection with no audio must keep cycling well past the budget.
	waitCalls(t, provider, 5)

	q.CloseSend()
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run after idle cycles: %v", err)
	}
}

func TestSupervisorContextCancel(t *testing.T) {
	provider := &mock.Provider{Session: mock.NewSession()}
	q := recognize.NewQueue(8)

	sup, err := recognize.NewSupervisor(recognize.Config{Provider: provider, Queue: q})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, errCh := startSupervisor(t, ctx, sup)

	cancel()
	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}
