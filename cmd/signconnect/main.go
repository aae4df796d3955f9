// Command signconnect is the SignConnect realtime communication server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HowDiggy/signconnect/internal/auth/firebase"
	"github.com/HowDiggy/signconnect/internal/config"
	"github.com/HowDiggy/signconnect/internal/health"
	"github.com/HowDiggy/signconnect/internal/observe"
	"github.com/HowDiggy/signconnect/internal/resilience"
	"github.com/HowDiggy/signconnect/internal/store/postgres"
	"github.com/HowDiggy/signconnect/internal/suggest"
	"github.com/HowDiggy/signconnect/internal/ws"
	"github.com/HowDiggy/signconnect/pkg/provider/embeddings"
	ollamaembed "github.com/HowDiggy/signconnect/pkg/provider/embeddings/ollama"
	oaembed "github.com/HowDiggy/signconnect/pkg/provider/embeddings/openai"
	"github.com/HowDiggy/signconnect/pkg/provider/llm"
	"github.com/HowDiggy/signconnect/pkg/provider/llm/anyllm"
	"github.com/HowDiggy/signconnect/pkg/provider/stt"
	"github.com/HowDiggy/signconnect/pkg/provider/stt/deepgram"
	"github.com/HowDiggy/signconnect/pkg/provider/stt/google"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "signconnect: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "signconnect: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("signconnect starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("metrics init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("stt provider setup failed", "err", err)
		return 1
	}
	llmP, err := buildLLM(cfg, reg)
	if err != nil {
		slog.Error("llm provider setup failed", "err", err)
		return 1
	}
	embP, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("embeddings provider setup failed", "err", err)
		return 1
	}
	slog.Info("providers ready",
		"stt", cfg.Providers.STT.Name,
		"llm", cfg.Providers.LLM.Name,
		"embeddings", cfg.Providers.Embeddings.Name,
	)

	verifier, err := firebase.New(ctx,
		firebase.WithProjectID(cfg.Auth.FirebaseProjectID),
		firebase.WithCredentialsFile(cfg.Auth.CredentialsFile),
	)
	if err != nil {
		slog.Error("firebase verifier setup failed", "err", err)
		return 1
	}

	st, err := postgres.New(ctx, cfg.Store.PostgresDSN, cfg.Store.EmbeddingDimensions)
	if err != nil {
		slog.Error("store setup failed", "err", err)
		return 1
	}
	defer st.Close()
	slog.Info("store ready", "embedding_dimensions", cfg.Store.EmbeddingDimensions)

	requester, err := suggest.NewRequester(st, embP, llmP,
		suggest.WithLogger(logger),
		suggest.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("suggestion requester setup failed", "err", err)
		return 1
	}

	coordinator, err := ws.NewCoordinator(verifier, st, sttP, requester,
		ws.WithLogger(logger),
		ws.WithMetrics(metrics),
		ws.WithHandshakeTimeout(cfg.Realtime.HandshakeTimeout.Std()),
		ws.WithInactivityTimeout(cfg.Realtime.InactivityTimeout.Std()),
		ws.WithRestartBackoff(cfg.Realtime.RestartBackoff.Std()),
		ws.WithQueueCapacity(cfg.Realtime.QueueCapacity),
		ws.WithAutoSuggest(cfg.Realtime.AutoSuggest),
		ws.WithStreamConfig(stt.StreamConfig{
			Encoding:   stt.EncodingWebmOpus,
			SampleRate: cfg.Realtime.SampleRate,
			Language:   cfg.Realtime.Language,
			Interim:    true,
		}),
	)
	if err != nil {
		slog.Error("coordinator setup failed", "err", err)
		return 1
	}

	mux := http.NewServeMux()
	mux.Handle("/api/ws", coordinator)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.PingChecker("postgres", st),
		health.Checker{Name: "providers", Check: func(context.Context) error {
			if sttP == nil || llmP == nil || embP == nil {
				return errors.New("providers not configured")
			}
			return nil
		}},
	).Register(mux)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			serveErr <- server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		serveErr <- server.ListenAndServe()
	}()
	slog.Info("server ready, press Ctrl+C to shut down")

	select {
	case err := <-serveErr:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	coordinator.Registry().Broadcast(shutdownCtx, ws.ShutdownMsg())
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// STT.

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []google.Option
		if entry.Model != "" {
			opts = append(opts, google.WithModel(entry.Model))
		}
		if entry.CredentialsFile != "" {
			opts = append(opts, google.WithCredentialsFile(entry.CredentialsFile))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// LLM. The hosted backends share the APIKey + BaseURL pattern.

	for _, providerName := range []string{
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not a key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// Embeddings.

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildLLM creates the primary LLM provider and, when fallbacks are
// configured, wraps the chain in circuit-breaker failover.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	if len(cfg.Providers.LLMFallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("llm fallback %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, p)
		slog.Info("llm fallback registered", "name", entry.Name, "model", entry.Model)
	}
	return chain, nil
}
