package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/HowDiggy/signconnect/internal/auth"
	"github.com/HowDiggy/signconnect/internal/observe"
	"github.com/HowDiggy/signconnect/internal/recognize"
	"github.com/HowDiggy/signconnect/internal/store"
	"github.com/HowDiggy/signconnect/internal/suggest"
	"github.com/HowDiggy/signconnect/pkg/provider/stt"
)

const (
	// DefaultHandshakeTimeout is how long a new connection may take to send a
	// valid authenticate message before it is closed.
	DefaultHandshakeTimeout = 10 * time.Second

	// teardownTimeout bounds how long teardown waits for the recognition
	// supervisor to acknowledge cancellation.
	teardownTimeout = 5 * time.Second

	// historyDepth is how many final transcript lines are retained as
	// conversation context for suggestion requests.
	historyDepth = 10
)

// Coordinator owns the websocket endpoint. It runs the authentication
// handshake, then drives the per-connection message loop and the transcript
// forwarding pipeline. One Coordinator serves all connections.
type Coordinator struct {
	verifier  auth.Verifier
	store     store.Store
	sttP      stt.Provider
	suggester *suggest.Requester
	registry  *Registry

	handshakeTimeout  time.Duration
	inactivityTimeout time.Duration
	restartBackoff    time.Duration
	queueCapacity     int
	streamCfg         stt.StreamConfig
	autoSuggest       bool
	originPatterns    []string

	logger  *slog.Logger
	metrics *observe.Metrics
}

// Compile-time assertion that Coordinator is an http.Handler.
var _ http.Handler = (*Coordinator)(nil)

// Option is a functional option for configuring the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metrics sink. Default: none.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRegistry sets the connection registry. Default: a fresh one.
func WithRegistry(r *Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.handshakeTimeout = d }
}

// WithInactivityTimeout sets the recognition inactivity timeout passed to
// each connection's supervisor.
func WithInactivityTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.inactivityTimeout = d }
}

// WithRestartBackoff sets the supervisor restart backoff.
func WithRestartBackoff(d time.Duration) Option {
	return func(c *Coordinator) { c.restartBackoff = d }
}

// WithQueueCapacity sets the audio queue capacity per connection.
func WithQueueCapacity(n int) Option {
	return func(c *Coordinator) { c.queueCapacity = n }
}

// WithStreamConfig sets the recognition stream parameters.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(c *Coordinator) { c.streamCfg = cfg }
}

// WithAutoSuggest enables suggestion generation on every final transcript,
// in addition to explicit get_suggestions requests.
func WithAutoSuggest(enabled bool) Option {
	return func(c *Coordinator) { c.autoSuggest = enabled }
}

// WithOriginPatterns sets the allowed websocket origins. Default: same host
// only.
func WithOriginPatterns(patterns []string) Option {
	return func(c *Coordinator) { c.originPatterns = patterns }
}

// NewCoordinator returns a Coordinator. verifier, st, sttP, and suggester are
// required.
func NewCoordinator(verifier auth.Verifier, st store.Store, sttP stt.Provider, suggester *suggest.Requester, opts ...Option) (*Coordinator, error) {
	if verifier == nil {
		return nil, fmt.Errorf("ws: verifier is required")
	}
	if st == nil {
		return nil, fmt.Errorf("ws: store is required")
	}
	if sttP == nil {
		return nil, fmt.Errorf("ws: stt provider is required")
	}
	if suggester == nil {
		return nil, fmt.Errorf("ws: suggestion requester is required")
	}
	c := &Coordinator{
		verifier:         verifier,
		store:            st,
		sttP:             sttP,
		suggester:        suggester,
		handshakeTimeout: DefaultHandshakeTimeout,
		queueCapacity:    recognize.DefaultQueueCapacity,
		streamCfg: stt.StreamConfig{
			Encoding: stt.EncodingWebmOpus,
			Interim:  true,
		},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	return c, nil
}

// Registry exposes the connection registry, e.g. for readiness reporting.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// ServeHTTP upgrades the request to a websocket and serves the connection
// until the client disconnects or a fatal error occurs.
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: c.originPatterns,
	})
	if err != nil {
		c.logger.Warn("websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	user, ok := c.handshake(r.Context(), sock)
	if !ok {
		return
	}

	conn := newConn(sock, user.ID)
	c.registry.Add(conn)
	c.metrics.ConnectionOpened(r.Context())
	c.logger.Info("connection established", "conn_id", conn.ID, "user_id", user.ID)

	c.serve(r.Context(), conn, sock)
}

// handshake reads the authenticate message, verifies the token, and resolves
// the local user. On any authentication failure the connection is closed with
// a policy-violation code and ok is false.
func (c *Coordinator) handshake(ctx context.Context, sock *websocket.Conn) (*store.User, bool) {
	hsCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	var msg ClientMessage
	if err := wsjson.Read(hsCtx, sock, &msg); err != nil {
		c.rejectAuth(ctx, sock, "no authenticate message before deadline")
		return nil, false
	}
	if msg.Type != TypeAuthenticate || msg.Token == "" {
		c.rejectAuth(ctx, sock, "first message must be authenticate with a token")
		return nil, false
	}

	identity, err := c.verifier.Verify(hsCtx, msg.Token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			c.logger.Error("token verification failed", "error", err)
		}
		c.rejectAuth(ctx, sock, "invalid token")
		return nil, false
	}

	user, err := c.store.GetOrCreateUser(hsCtx, identity.UID, identity.Email, usernameFor(identity))
	if err != nil {
		c.logger.Error("user resolution failed during handshake", "error", err, "uid", identity.UID)
		sock.Close(websocket.StatusInternalError, "internal error")
		return nil, false
	}

	if err := writeJSON(ctx, sock, authSuccessMsg()); err != nil {
		sock.Close(websocket.StatusInternalError, "internal error")
		return nil, false
	}
	return user, true
}

// rejectAuth sends auth_failed (best effort) and closes with a
// policy-violation status.
func (c *Coordinator) rejectAuth(ctx context.Context, sock *websocket.Conn, reason string) {
	c.logger.Warn("authentication rejected", "reason", reason)
	c.metrics.RecordAuthFailure(ctx, reason)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	_ = writeJSON(writeCtx, sock, authFailedMsg())
	sock.Close(websocket.StatusPolicyViolation, "authentication failed")
}

// serve runs the recognition pipeline and the client message loop for one
// authenticated connection.
func (c *Coordinator) serve(ctx context.Context, conn *Conn, sock *websocket.Conn) {
	supCtx, cancelSup := context.WithCancel(ctx)
	defer cancelSup()

	queue := recognize.NewQueue(c.queueCapacity)
	sup, err := recognize.NewSupervisor(recognize.Config{
		Provider:          c.sttP,
		Stream:            c.streamCfg,
		Queue:             queue,
		InactivityTimeout: c.inactivityTimeout,
		RestartBackoff:    c.restartBackoff,
		Logger:            c.logger.With("conn_id", conn.ID),
		Metrics:           c.metrics,
	})
	if err != nil {
		c.logger.Error("supervisor setup failed", "error", err)
		c.registry.Remove(conn.ID)
		c.metrics.ConnectionClosed(ctx)
		sock.Close(websocket.StatusInternalError, "internal error")
		return
	}

	var history transcriptHistory

	runDone := make(chan error, 1)
	go func() {
		runDone <- sup.Run(supCtx)
	}()

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		c.forwardTranscripts(supCtx, conn, sup, &history)
	}()

	var teardown sync.Once
	cleanup := func(code websocket.StatusCode, reason string) {
		teardown.Do(func() {
			queue.CloseSend()
			select {
			case <-runDone:
			case <-time.After(teardownTimeout):
				cancelSup()
				<-runDone
			}
			<-forwardDone
			c.registry.Remove(conn.ID)
			c.metrics.ConnectionClosed(context.WithoutCancel(ctx))
			sock.Close(code, reason)
			c.logger.Info("connection closed", "conn_id", conn.ID)
		})
	}
	defer cleanup(websocket.StatusNormalClosure, "")

	// A fatal supervisor error ends the connection even while the message
	// loop is blocked reading.
	go func() {
		select {
		case err := <-runDone:
			runDone <- err
			if err != nil && supCtx.Err() == nil {
				c.logger.Error("recognition pipeline failed", "error", err, "conn_id", conn.ID)
				cleanup(websocket.StatusInternalError, "recognition failed")
			}
		case <-supCtx.Done():
		}
	}()

	c.messageLoop(ctx, conn, sock, queue, &history)
}

// messageLoop reads and dispatches client messages until the connection
// breaks. Messages are processed strictly in arrival order.
func (c *Coordinator) messageLoop(ctx context.Context, conn *Conn, sock *websocket.Conn, queue *recognize.Queue, history *transcriptHistory) {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, sock, &msg); err != nil {
			c.logger.Debug("read loop ended", "error", err, "conn_id", conn.ID)
			return
		}

		switch msg.Type {
		case TypeAudio:
			c.handleAudio(ctx, conn, queue, msg.Data)
		case TypeGetSuggestions:
			c.handleSuggestions(ctx, conn, msg, history)
		case TypePing:
			if err := conn.Send(ctx, pongMsg()); err != nil {
				return
			}
		default:
			c.logger.Warn("unknown message type ignored", "type", msg.Type, "conn_id", conn.ID)
		}
	}
}

func (c *Coordinator) handleAudio(ctx context.Context, conn *Conn, queue *recognize.Queue, data string) {
	frame, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		c.logger.Warn("audio frame with invalid base64 dropped", "error", err, "conn_id", conn.ID)
		return
	}
	if len(frame) == 0 {
		return
	}

	if err := queue.Push(frame); err != nil {
		if errors.Is(err, recognize.ErrQueueFull) {
			c.logger.Warn("audio queue full, frame dropped", "conn_id", conn.ID)
			c.metrics.RecordDroppedFrames(ctx, 1)
			return
		}
		c.logger.Warn("audio frame rejected", "error", err, "conn_id", conn.ID)
	}
}

func (c *Coordinator) handleSuggestions(ctx context.Context, conn *Conn, msg ClientMessage, history *transcriptHistory) {
	transcript := strings.TrimSpace(msg.Transcript)
	if transcript == "" {
		transcript = history.latest()
	}
	if transcript == "" {
		c.logger.Warn("get_suggestions with no transcript ignored", "conn_id", conn.ID)
		return
	}

	hist := msg.ConversationHistory
	if len(hist) == 0 {
		hist = history.snapshot()
	}

	suggestions := c.suggester.Suggestions(ctx, conn.UserID, transcript, hist)
	if err := conn.Send(ctx, suggestionsMsg(suggestions)); err != nil {
		c.logger.Debug("suggestion delivery failed", "error", err, "conn_id", conn.ID)
	}
}

// forwardTranscripts relays supervisor events to the client in production
// order and records final lines as conversation history.
func (c *Coordinator) forwardTranscripts(ctx context.Context, conn *Conn, sup *recognize.Supervisor, history *transcriptHistory) {
	for ev := range sup.Events() {
		kind := TypeInterimTranscript
		if ev.Kind == recognize.KindFinal {
			kind = TypeFinalTranscript
		}
		if err := conn.Send(ctx, transcriptMsg(kind, ev.Text)); err != nil {
			c.logger.Debug("transcript delivery failed", "error", err, "conn_id", conn.ID)
			return
		}

		if ev.Kind != recognize.KindFinal {
			continue
		}
		hist := history.snapshot()
		history.append(ev.Text)

		if c.autoSuggest {
			suggestions := c.suggester.Suggestions(ctx, conn.UserID, ev.Text, hist)
			if err := conn.Send(ctx, suggestionsMsg(suggestions)); err != nil {
				return
			}
		}
	}
}

// transcriptHistory is a small rolling window of final transcript lines,
// oldest first.
type transcriptHistory struct {
	mu    sync.Mutex
	lines []string
}

func (h *transcriptHistory) append(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	if len(h.lines) > historyDepth {
		h.lines = h.lines[len(h.lines)-historyDepth:]
	}
}

func (h *transcriptHistory) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.lines))
	copy(out, h.lines)
	return out
}

func (h *transcriptHistory) latest() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.lines) == 0 {
		return ""
	}
	return h.lines[len(h.lines)-1]
}

// usernameFor derives a display username from the verified identity.
func usernameFor(id auth.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	if at := strings.IndexByte(id.Email, '@'); at > 0 {
		return id.Email[:at]
	}
	return id.UID
}

func writeJSON(ctx context.Context, sock *websocket.Conn, msg ServerMessage) error {
	return wsjson.Write(ctx, sock, msg)
}
