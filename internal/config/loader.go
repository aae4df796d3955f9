package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a configuration from the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes, defaults, and validates a configuration from r.
// ${VAR} references are expanded from the environment before decoding, so
// secrets can stay out of the file. Unknown fields are rejected so typos
// surface immediately.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Store.EmbeddingDimensions == 0 {
		c.Store.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.Realtime.InactivityTimeout == 0 {
		c.Realtime.InactivityTimeout = Duration(30 * time.Second)
	}
	if c.Realtime.RestartBackoff == 0 {
		c.Realtime.RestartBackoff = Duration(time.Second)
	}
	if c.Realtime.QueueCapacity == 0 {
		c.Realtime.QueueCapacity = 256
	}
	if c.Realtime.SampleRate == 0 {
		c.Realtime.SampleRate = DefaultSampleRate
	}
	if c.Realtime.Language == "" {
		c.Realtime.Language = DefaultLanguage
	}
}

// Validate checks the configuration for problems and returns all of them
// joined into a single error.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level: unknown level %q", c.Server.LogLevel))
	}
	if c.Server.TLS != nil {
		if c.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if c.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}
	if c.Auth.FirebaseProjectID == "" {
		errs = append(errs, errors.New("auth.firebase_project_id is required"))
	}
	if c.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if c.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if c.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings.name is required"))
	}
	for i, fb := range c.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}
	if c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required"))
	}
	if c.Store.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("store.embedding_dimensions must be positive, got %d", c.Store.EmbeddingDimensions))
	}
	if c.Realtime.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("realtime.handshake_timeout must be positive"))
	}
	if c.Realtime.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("realtime.queue_capacity must be positive, got %d", c.Realtime.QueueCapacity))
	}

	return errors.Join(errs...)
}
