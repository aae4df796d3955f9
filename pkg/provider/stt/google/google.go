// Package google provides a Google Cloud Speech-to-Text backed STT provider
// using the StreamingRecognize bidirectional API. It implements the
// stt.Provider interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/HowDiggy/signconnect/pkg/provider/stt"
	"github.com/HowDiggy/signconnect/pkg/types"
)

const (
	defaultModel      = "latest_long"
	defaultLanguage   = "en-US"
	defaultSampleRate = 48000

	// drainTimeout bounds how long Close waits for the upstream to flush
	// pending results after the half-close before forcing the stream down.
	drainTimeout = 3 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the recognition model (e.g., "latest_long", "latest_short").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithCredentialsFile authenticates with the given service-account JSON file
// instead of Application Default Credentials.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		p.credentialsFile = path
	}
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text.
type Provider struct {
	client          *speech.Client
	model           string
	language        string
	credentialsFile string
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New creates a Provider and establishes the underlying gRPC client. Without
// WithCredentialsFile, Application Default Credentials are used
// (GOOGLE_APPLICATION_CREDENTIALS).
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}

	var clientOpts []option.ClientOption
	if p.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(p.credentialsFile))
	}

	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google stt: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Close releases the underlying gRPC client. Open sessions become unusable.
func (p *Provider) Close() error {
	return p.client.Close()
}

// StartStream opens a streaming recognition session and sends the one-time
// configuration frame. It respects cfg.Encoding, cfg.SampleRate,
// cfg.Language, and cfg.Interim.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := p.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("google stt: open stream: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         p.recognitionConfig(cfg),
				InterimResults: cfg.Interim,
			},
		},
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("google stt: send config: %w", err)
	}

	sess := &session{
		stream:   stream,
		cancel:   cancel,
		results:  make(chan types.Transcript, 16),
		readDone: make(chan struct{}),
		quit:     make(chan struct{}),
	}

	go sess.readLoop()

	return sess, nil
}

// recognitionConfig translates a stt.StreamConfig into the Google request type.
func (p *Provider) recognitionConfig(cfg stt.StreamConfig) *speechpb.RecognitionConfig {
	encoding := speechpb.RecognitionConfig_WEBM_OPUS
	if cfg.Encoding == stt.EncodingLinear16 {
		encoding = speechpb.RecognitionConfig_LINEAR16
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}

	return &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(rate),
		LanguageCode:               lang,
		EnableAutomaticPunctuation: true,
		Model:                      p.model,
	}
}

// session is a live Google streaming session. It implements stt.SessionHandle.
type session struct {
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc

	results  chan types.Transcript
	readDone chan struct{}
	quit     chan struct{}

	sendMu sync.Mutex
	closed bool

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// SendAudio sends one audio frame to the recognizer.
func (s *session) SendAudio(frame []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return errors.New("google stt: session is closed")
	}
	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: frame,
		},
	}); err != nil {
		return fmt.Errorf("google stt: send audio: %w", err)
	}
	return nil
}

// Results returns the ordered transcript channel.
func (s *session) Results() <-chan types.Transcript { return s.results }

// Err returns the terminal session error. See stt.SessionHandle.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close half-closes the send side so the recognizer flushes pending results,
// waits briefly for the read loop to drain, then tears the stream down.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		_ = s.stream.CloseSend()
		s.sendMu.Unlock()

		select {
		case <-s.readDone:
		case <-time.After(drainTimeout):
		}
		close(s.quit)
		s.cancel()
		<-s.readDone
	})
	return nil
}

// readLoop receives responses and forwards each result alternative onto the
// results channel until the stream ends.
func (s *session) readLoop() {
	defer close(s.readDone)
	defer close(s.results)

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			s.setErr(s.classify(err))
			return
		}

		for _, res := range resp.Results {
			if len(res.Alternatives) == 0 {
				continue
			}
			alt := res.Alternatives[0]
			t := types.Transcript{
				Text:       alt.Transcript,
				IsFinal:    res.IsFinal,
				Confidence: float64(alt.Confidence),
			}
			// The consumer may have gone away during teardown; never
			// block the read loop on an abandoned channel.
			select {
			case s.results <- t:
			case <-s.quit:
				return
			}
		}
	}
}

// setErr records the terminal error exactly once.
func (s *session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// classify maps a stream error to nil (clean end), a transient error eligible
// for a session restart, or a fatal error.
func (s *session) classify(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	s.sendMu.Lock()
	closed := s.closed
	s.sendMu.Unlock()
	if closed {
		// Errors observed after Close are an artefact of teardown.
		return nil
	}

	if transientCode(status.Code(err)) {
		return fmt.Errorf("%w: %v", stt.ErrTransient, err)
	}
	return fmt.Errorf("google stt: stream: %w", err)
}

// transientCode reports whether a gRPC status code indicates a recoverable
// stream failure. OutOfRange is what the service returns when the maximum
// stream duration (~5 minutes) is exceeded.
func transientCode(c codes.Code) bool {
	switch c {
	case codes.OutOfRange,
		codes.DeadlineExceeded,
		codes.Unavailable,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.Internal:
		return true
	}
	return false
}
