package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpadapter "github.com/kirillkom/content-analyzer/internal/adapters/http"
	"github.com/kirillkom/content-analyzer/internal/config"
	"github.com/kirillkom/content-analyzer/internal/core/ports"
	"github.com/kirillkom/content-analyzer/internal/core/usecase"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/events/nats"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/extractor/document"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/jobstore/memory"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/llm"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/storage/s3"
	"github.com/kirillkom/content-analyzer/internal/mediatype"
	"github.com/kirillkom/content-analyzer/internal/observability/metrics"
)

type App struct {
	Config       config.Config
	Orchestrator *usecase.Orchestrator
	Handler      http.Handler

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPServerMetrics(registry, "api")
	jobMetrics := metrics.NewJobMetrics(registry, "api")

	executor := resilience.NewExecutor(resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithObserver(jobMetrics),
	)

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("init object storage: %w", err))
	}

	extractor, err := newExtractor(cfg, storage, logger)
	if err != nil {
		return fail(fmt.Errorf("init extractor: %w", err))
	}

	generator, err := newSuggestionGenerator(ctx, cfg, executor)
	if err != nil {
		return fail(fmt.Errorf("init suggestion provider: %w", err))
	}

	opts := []usecase.OrchestratorOption{
		usecase.WithLogger(logger),
		usecase.WithJobObserver(jobMetrics),
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
			Name:               "content-analyzer",
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return fail(fmt.Errorf("init event publisher: %w", err))
		}
		closers = append(closers, publisher.Close)
		opts = append(opts, usecase.WithEventPublisher(publisher))
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		archive := postgres.NewArchiveRepository(db)
		if err := archive.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		opts = append(opts, usecase.WithJobArchive(archive))
	}

	orchestrator := usecase.NewOrchestrator(
		memory.New(),
		storage,
		extractor,
		usecase.NewSuggestionStage(generator, cfg.SuggestionCount, cfg.SuggestionTimeout),
		usecase.OrchestratorConfig{
			MaxUploadBytes:    cfg.MaxUploadBytes,
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			ExtractionTimeout: cfg.ExtractionTimeout,
			SupportedMimeType: mediatype.IsSupported,
		},
		opts...,
	)

	router := httpadapter.NewRouter(cfg, orchestrator, orchestrator,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLogger(logger),
	)

	return &App{
		Config:       cfg,
		Orchestrator: orchestrator,
		Handler:      router.Handler(),
		closeFn:      closeAll,
	}, nil
}

// Shutdown drains in-flight jobs, then releases external connections.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Orchestrator.Close(ctx)
	if a.closeFn != nil {
		a.closeFn()
	}
	return err
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return s3.New(ctx, s3.Config{
			EndpointURL: cfg.S3EndpointURL,
			Region:      cfg.S3Region,
			AccessKey:   cfg.S3AccessKey,
			SecretKey:   cfg.S3SecretKey,
			Bucket:      cfg.S3Bucket,
			Prefix:      cfg.S3Prefix,
		})
	case config.StorageBackendLocal, "":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newExtractor(cfg config.Config, storage ports.ObjectStorage, logger *slog.Logger) (*document.Extractor, error) {
	runner := document.ExecRunner{Logger: logger}
	ocr, err := document.NewOCREngine(cfg.OCREngine, runner, cfg.TesseractBinary, cfg.OCRLanguages...)
	if err != nil {
		return nil, err
	}
	return document.NewExtractor(
		storage,
		document.NewLayerReader(cfg.PDFMaxPages),
		document.NewPdftoppmRasterizer(runner, cfg.PdftoppmBinary, cfg.PDFRasterDPI, cfg.PDFMaxPages, cfg.TempDir),
		ocr,
		document.Config{MinTextLayerChars: cfg.MinTextLayerChars, TempDir: cfg.TempDir},
		logger,
	), nil
}

func newSuggestionGenerator(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.SuggestionGenerator, error) {
	params := llm.SuggestionParams{
		Temperature:     float32(cfg.LLMTemperature),
		MaxOutputTokens: int32(cfg.LLMMaxOutputTokens),
	}
	switch cfg.LLMProvider {
	case config.LLMProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is empty")
		}
		params.Model = cfg.GeminiModel
		return gemini.New(ctx, cfg.GeminiAPIKey, params, executor)
	case config.LLMProviderOllama:
		params.Model = cfg.OllamaModel
		return ollama.NewGenerator(ollama.New(cfg.OllamaURL, params, executor)), nil
	case config.LLMProviderNone:
		// Jobs still extract text; suggestions end as failed.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	out = out.FitWithin(resilience.OpGeminiGenerate, cfg.SuggestionTimeout)
	out = out.FitWithin(resilience.OpOllamaGenerate, cfg.SuggestionTimeout)
	return out
}
