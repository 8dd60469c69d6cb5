package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
	"github.com/haasonsaas/mdflow-engine/internal/llm/providers"
	"github.com/haasonsaas/mdflow-engine/internal/observability"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
	"github.com/haasonsaas/mdflow-engine/internal/profile"
	"github.com/haasonsaas/mdflow-engine/internal/ratelimit"
	"github.com/haasonsaas/mdflow-engine/internal/retry"
	"github.com/haasonsaas/mdflow-engine/internal/runlock"
	"github.com/haasonsaas/mdflow-engine/internal/runner"
	"github.com/haasonsaas/mdflow-engine/internal/secrets"
	"github.com/haasonsaas/mdflow-engine/internal/tts"
	"github.com/haasonsaas/mdflow-engine/internal/ttsengine"
	"github.com/haasonsaas/mdflow-engine/internal/usage"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// engine bundles every component runServe wires together, handed to the
// HTTP handlers so they never reach for a process-wide global.
type engine struct {
	cfg Config

	outlineStore outline.Store
	profileStore profile.Store
	secretStore  *secrets.Store

	runner *runner.Runner
	auth   *authenticator

	ttsPool     *ttsengine.WorkerPool
	ttsSynth    ttsengine.Synthesizer
	ttsUploader ttsengine.Uploader
	ttsStore    ttsengine.AudioStore
	usageRec    *usage.Recorder

	limiter *ratelimit.Limiter

	// inflight tracks in-progress run_script calls, keyed by
	// "<user_bid>:<outline_item_bid>", for the §6.1 run-status endpoint.
	inflight sync.Map

	logger *observability.Logger
}

// runServe opens every dependency, wires the HTTP/SSE surface, and blocks
// until a shutdown signal arrives or the server fails.
func runServe(ctx context.Context, cfg Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("mdflow-engine: DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("mdflow-engine: open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
	metrics := observability.NewMetrics()

	e := &engine{cfg: cfg, logger: logger}

	e.secretStore = secrets.New(secrets.NewPostgresStore(db), secrets.Config{SecretKey: cfg.SecretKey})
	if cfg.DevSQLitePath != "" {
		sqliteStore, err := outline.OpenSQLiteStore(cfg.DevSQLitePath)
		if err != nil {
			return fmt.Errorf("mdflow-engine: open dev sqlite store: %w", err)
		}
		if err := seedDemoCourse(ctx, sqliteStore); err != nil {
			return fmt.Errorf("mdflow-engine: seed demo course: %w", err)
		}
		e.outlineStore = sqliteStore
		logger.Info(ctx, "outline store backed by dev sqlite", "path", cfg.DevSQLitePath)
	} else {
		e.outlineStore = outline.NewPostgresStore(db)
	}
	e.profileStore = profile.NewPostgresStore(db)
	e.auth = newAuthenticator(cfg.JWTSecret)
	e.usageRec = usage.NewRecorder(db, slog.Default())

	registry, err := buildRegistry(ctx, cfg, e.usageRec, logger, metrics)
	if err != nil {
		return err
	}

	locker, err := runlock.NewDBLocker(db, runlock.Config{OwnerID: processOwnerID()})
	if err != nil {
		return fmt.Errorf("mdflow-engine: build run lock: %w", err)
	}
	defer locker.Close()

	runnerCfg := runner.DefaultConfig()
	runnerCfg.DefaultModel = cfg.DefaultLLMModel
	runnerCfg.DefaultTemperature = cfg.DefaultLLMTemperature
	e.runner = runner.New(runnerCfg, e.outlineStore, e.profileStore, registry, nil, locker)
	e.runner.SetObservability(logger, metrics)

	e.ttsPool = ttsengine.NewWorkerPool(cfg.TTSWorkers)
	e.ttsPool.SetMetrics(metrics)
	e.ttsSynth = ttsengine.NewTTSSynthesizer(buildTTSConfig(cfg))
	e.ttsStore = ttsengine.NewPostgresAudioStore(db)
	if cfg.S3Bucket != "" {
		uploader, err := buildS3Uploader(ctx, cfg)
		if err != nil {
			return err
		}
		e.ttsUploader = uploader
	}

	e.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitPerSecond,
		BurstSize:         cfg.RateLimitBurst,
		Enabled:           true,
	})

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.LockSweepCron, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n, err := locker.PurgeExpired(sweepCtx); err != nil {
			logger.Error(sweepCtx, "run lock sweep failed", "error", err)
		} else if n > 0 {
			logger.Info(sweepCtx, "run lock sweep purged expired leases", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("mdflow-engine: schedule lock sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	mux := e.buildMux()
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logger.Info(ctx, "mdflow-engine started", "http_addr", cfg.HTTPAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info(ctx, "shutdown signal received, draining connections")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mdflow-engine: shutdown failed: %w", err)
	}
	logger.Info(context.Background(), "mdflow-engine stopped gracefully")
	return nil
}

// processOwnerID identifies this process's lock ownership. A random id per
// process start is sufficient: DBLocker only needs ownership to be stable
// for the lifetime of one process, not across restarts.
func processOwnerID() string {
	return "mdflow-engine-" + mdflow.NewBID()
}

// buildRegistry wires every configured LLM provider (C5) plus the retry
// policy, observability hooks, and the context-scoped usage recorder (C10).
func buildRegistry(ctx context.Context, cfg Config, recorder *usage.Recorder, logger *observability.Logger, metrics *observability.Metrics) (*llm.Registry, error) {
	registry := llm.NewRegistry()
	registry.SetObservability(logger, metrics)
	registry.SetRetryConfig(retry.DefaultConfig())
	registry.SetUsageRecorder(usage.NewContextLLMAdapter(recorder))

	if cfg.OpenAIAPIKey != "" {
		registry.Register("openai", providers.NewOpenAIProvider(cfg.OpenAIAPIKey))
		registry.Route(llm.ModelRoute{Alias: "gpt", Provider: "openai", InvokeModel: cfg.DefaultLLMModel})
	}
	if cfg.AnthropicAPIKey != "" {
		registry.Register("anthropic", providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: cfg.AnthropicAPIKey}))
		registry.Route(llm.ModelRoute{Alias: "claude", Provider: "anthropic"})
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := providers.NewGeminiProvider(ctx, providers.GeminiConfig{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			return nil, fmt.Errorf("mdflow-engine: build gemini provider: %w", err)
		}
		registry.Register("gemini", gemini)
		registry.Route(llm.ModelRoute{Alias: "gemini", Provider: "gemini"})
	}
	if cfg.BedrockRegion != "" {
		bedrock, err := providers.NewBedrockProvider(ctx, providers.BedrockConfig{Region: cfg.BedrockRegion})
		if err != nil {
			logger.Error(ctx, "bedrock provider unavailable, skipping", "error", err)
		} else {
			registry.Register("bedrock", bedrock)
			registry.Route(llm.ModelRoute{Alias: "ark", Provider: "bedrock"})
		}
	}
	return registry, nil
}

// buildTTSConfig adapts the Engine's flat env-derived settings into the
// provider-fallback-chain Config internal/tts expects.
func buildTTSConfig(cfg Config) *tts.Config {
	ttsCfg := tts.DefaultConfig()
	ttsCfg.Enabled = true
	ttsCfg.Provider = tts.Provider(cfg.TTSProvider)
	ttsCfg.FallbackChain = []tts.Provider{tts.ProviderEdge, tts.ProviderOpenAI, tts.ProviderElevenLabs}
	ttsCfg.Edge.Voice = cfg.TTSEdgeVoice
	ttsCfg.OpenAI.APIKey = cfg.TTSOpenAIAPIKey
	ttsCfg.OpenAI.Voice = cfg.TTSOpenAIVoice
	ttsCfg.ElevenLabs.APIKey = cfg.TTSElevenAPIKey
	ttsCfg.ElevenLabs.VoiceID = cfg.TTSElevenVoiceID
	ttsCfg.ApplyDefaults()
	return ttsCfg
}

// buildS3Uploader constructs the object-storage client C7 finalisation
// uploads synthesized audio through (§6.4), using the default AWS
// credential chain (the same chain Bedrock falls back to).
func buildS3Uploader(ctx context.Context, cfg Config) (*ttsengine.S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("mdflow-engine: load aws config for s3: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return ttsengine.NewS3Uploader(client, cfg.S3Bucket, cfg.S3PublicBaseURL), nil
}

// seedDemoCourse loads a minimal one-leaf course into store, for both the
// draft and published variant, so the HTTP surface has something to run
// against with no external authoring system attached.
func seedDemoCourse(ctx context.Context, store *outline.SQLiteStore) error {
	const shifuBID = "demo-shifu"
	const leafBID = "demo-leaf"

	shifu := &mdflow.Shifu{
		ShifuBID:        shifuBID,
		Title:           "Demo course",
		Description:     "A single-leaf course for local smoke testing.",
		LLMSystemPrompt: "You are a friendly tutor introducing MarkdownFlow.",
	}
	leaf := &mdflow.OutlineItem{
		OutlineItemBID: leafBID,
		ShifuBID:       shifuBID,
		Position:       "1",
		Title:          "Welcome",
		Type:           mdflow.OutlineNormal,
		Mdflow:         "Welcome to the demo course! Let's check your understanding.\n?[%{{answer}}...what are you hoping to learn?]",
	}
	tree := &mdflow.StructTree{
		ShifuBID: shifuBID,
		Root: &mdflow.StructNode{
			BID:   shifuBID,
			Type:  mdflow.StructShifu,
			Title: shifu.Title,
			Children: []*mdflow.StructNode{
				{BID: leafBID, Type: mdflow.StructOutline, Title: leaf.Title},
			},
		},
	}

	for _, preview := range []bool{false, true} {
		if err := store.SeedContent(ctx, preview, shifu, []*mdflow.OutlineItem{leaf}, tree); err != nil {
			return err
		}
	}
	return nil
}
