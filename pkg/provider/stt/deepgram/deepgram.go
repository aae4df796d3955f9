// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface and is
// the alternative to the Google backend for deployments without GCP access.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/HowDiggy/signconnect/pkg/provider/stt"
	"github.com/HowDiggy/signconnect/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 48000

	// drainTimeout bounds how long Close waits for Deepgram to flush pending
	// results after the CloseStream message before dropping the connection.
	drainTimeout = 3 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		results:  make(chan types.Transcript, 16),
		readDone: make(chan struct{}),
		quit:     make(chan struct{}),
	}

	go sess.readLoop(context.WithoutCancel(ctx))

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("sample_rate", strconv.Itoa(rate))
	if cfg.Interim {
		q.Set("interim_results", "true")
	}
	// Deepgram auto-detects WebM/Opus containers; only raw PCM needs an
	// explicit encoding parameter.
	if cfg.Encoding == stt.EncodingLinear16 {
		q.Set("encoding", "linear16")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a Deepgram Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	results  chan types.Transcript
	readDone chan struct{}
	quit     chan struct{}

	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

// SendAudio forwards one binary frame to Deepgram.
func (s *session) SendAudio(frame []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("deepgram: session is closed")
	}
	if err := s.conn.Write(context.Background(), websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("deepgram: send audio: %w", err)
	}
	return nil
}

// Results returns the ordered transcript channel.
func (s *session) Results() <-chan types.Transcript { return s.results }

// Err returns the terminal session error. See stt.SessionHandle.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close asks Deepgram to flush pending audio, waits for the read loop to
// finish, and closes the websocket.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		select {
		case <-s.readDone:
		case <-time.After(drainTimeout):
		}
		close(s.quit)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		<-s.readDone
	})
	return nil
}

// readLoop receives JSON messages from Deepgram and forwards transcripts in
// arrival order until the connection drops or the stream finishes.
func (s *session) readLoop(ctx context.Context) {
	defer close(s.readDone)
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.setErr(s.classify(err))
			return
		}

		t, ok := parseResponse(msg)
		if !ok {
			continue
		}
		// The consumer may have gone away during teardown; never block the
		// read loop on an abandoned channel.
		select {
		case s.results <- t:
		case <-s.quit:
			return
		}
	}
}

// setErr records the terminal error exactly once.
func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// classify maps a read error to nil (clean end after Close) or a transient
// error. Deepgram drops idle connections and rotates streams server-side, so
// every unexpected disconnect is worth one reopen attempt.
func (s *session) classify(err error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return fmt.Errorf("%w: deepgram closed stream: %v", stt.ErrTransient, err)
	}
	return fmt.Errorf("%w: deepgram read: %v", stt.ErrTransient, err)
}

// parseResponse parses a raw Deepgram message into a Transcript.
// Returns (zero, false) if the message should be ignored.
func parseResponse(data []byte) (types.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return types.Transcript{}, false
	}

	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
