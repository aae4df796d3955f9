package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HowDiggy/signconnect/pkg/provider/embeddings"
	embmock "github.com/HowDiggy/signconnect/pkg/provider/embeddings/mock"
	"github.com/HowDiggy/signconnect/pkg/provider/llm"
	llmmock "github.com/HowDiggy/signconnect/pkg/provider/llm/mock"
	"github.com/HowDiggy/signconnect/pkg/provider/stt"
	sttmock "github.com/HowDiggy/signconnect/pkg/provider/stt/mock"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
auth:
  firebase_project_id: signconnect-test
providers:
  stt:
    name: google
    credentials_file: /etc/sa.json
  llm:
    name: gemini
    api_key: key-123
    model: gemini-2.0-flash
  embeddings:
    name: openai
    api_key: key-456
store:
  postgres_dsn: postgres://localhost/signconnect
  embedding_dimensions: 1536
realtime:
  handshake_timeout: 5s
  inactivity_timeout: 45s
  queue_capacity: 128
  auto_suggest: true
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Providers.STT.Name != "google" {
		t.Errorf("STT.Name = %q, want google", cfg.Providers.STT.Name)
	}
	if cfg.Realtime.HandshakeTimeout.Std() != 5*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 5s", cfg.Realtime.HandshakeTimeout.Std())
	}
	if cfg.Realtime.InactivityTimeout.Std() != 45*time.Second {
		t.Errorf("InactivityTimeout = %v, want 45s", cfg.Realtime.InactivityTimeout.Std())
	}
	if cfg.Realtime.QueueCapacity != 128 {
		t.Errorf("QueueCapacity = %d, want 128", cfg.Realtime.QueueCapacity)
	}
	if !cfg.Realtime.AutoSuggest {
		t.Error("AutoSuggest = false, want true")
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	minimal := `
auth:
  firebase_project_id: signconnect-test
providers:
  stt:
    name: google
  llm:
    name: gemini
  embeddings:
    name: openai
store:
  postgres_dsn: postgres://localhost/signconnect
`
	cfg, err := LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Realtime.HandshakeTimeout.Std() != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", cfg.Realtime.HandshakeTimeout.Std(), DefaultHandshakeTimeout)
	}
	if cfg.Realtime.InactivityTimeout.Std() != 30*time.Second {
		t.Errorf("InactivityTimeout = %v, want 30s", cfg.Realtime.InactivityTimeout.Std())
	}
	if cfg.Realtime.RestartBackoff.Std() != time.Second {
		t.Errorf("RestartBackoff = %v, want 1s", cfg.Realtime.RestartBackoff.Std())
	}
	if cfg.Realtime.QueueCapacity != 256 {
		t.Errorf("QueueCapacity = %d, want 256", cfg.Realtime.QueueCapacity)
	}
	if cfg.Realtime.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", cfg.Realtime.SampleRate, DefaultSampleRate)
	}
	if cfg.Realtime.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", cfg.Realtime.Language, DefaultLanguage)
	}
	if cfg.Store.EmbeddingDimensions != DefaultEmbeddingDimensions {
		t.Errorf("EmbeddingDimensions = %d, want %d", cfg.Store.EmbeddingDimensions, DefaultEmbeddingDimensions)
	}
}

func TestLoadFromReaderExpandsEnv(t *testing.T) {
	t.Setenv("SIGNCONNECT_TEST_LLM_KEY", "key-from-env")

	doc := strings.Replace(validYAML, "api_key: key-123", "api_key: ${SIGNCONNECT_TEST_LLM_KEY}", 1)
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q, want key-from-env", cfg.Providers.LLM.APIKey)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	bad := strings.Replace(validYAML, "listen_addr", "listenaddr", 1)
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Error("unknown field should be rejected")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Server.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate on empty config should fail")
	}
	for _, want := range []string{
		"log_level",
		"firebase_project_id",
		"providers.stt.name",
		"providers.llm.name",
		"providers.embeddings.name",
		"postgres_dsn",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateTLS(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	cfg.Server.TLS = &TLSConfig{CertFile: "cert.pem"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "key_file") {
		t.Errorf("missing key_file not reported: %v", err)
	}

	cfg.Server.TLS = &TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete tls config rejected: %v", err)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var cfg RealtimeConfig
	if err := yaml.Unmarshal([]byte("handshake_timeout: 250ms"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.HandshakeTimeout.Std() != 250*time.Millisecond {
		t.Errorf("HandshakeTimeout = %v, want 250ms", cfg.HandshakeTimeout.Std())
	}

	if err := yaml.Unmarshal([]byte("handshake_timeout: soon"), &cfg); err == nil {
		t.Error("invalid duration should be rejected")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.RegisterSTT("mock", func(entry ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	r.RegisterLLM("mock", func(entry ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	r.RegisterEmbeddings("mock", func(entry ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{}, nil
	})

	if _, err := r.CreateSTT(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := r.CreateLLM(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := r.CreateEmbeddings(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateEmbeddings: %v", err)
	}

	if _, err := r.CreateSTT(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT unknown = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM unknown = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateEmbeddings(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateEmbeddings unknown = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	wantErr := errors.New("bad credentials")
	r.RegisterSTT("broken", func(entry ProviderEntry) (stt.Provider, error) {
		return nil, wantErr
	})

	if _, err := r.CreateSTT(ProviderEntry{Name: "broken"}); !errors.Is(err, wantErr) {
		t.Errorf("CreateSTT = %v, want wrapped factory error", err)
	}
}
