package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/koopa0/podrag/db"
	"github.com/koopa0/podrag/internal/config"
	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/rag"
	"github.com/koopa0/podrag/internal/scraper"
	"github.com/koopa0/podrag/internal/session"
)

// Setup creates and initializes the application. On any failure the
// partially built App is closed before the error is returned.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	if cfg.HasDatabase() {
		pool, cleanup, err := provideDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		a.dbCleanup = cleanup

		a.Episodes, err = episode.NewPostgresStore(pool, logger)
		if err != nil {
			return nil, err
		}
		a.Chunks, err = rag.NewPostgresChunkStore(pool, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres storage", "host", cfg.PostgresHost, "db", cfg.PostgresDBName)
	} else {
		a.Episodes = episode.NewMemoryStore()
		a.Chunks = rag.NewMemoryChunkStore()
		logger.Warn("no database configured, using in-memory storage; data is lost on restart")
	}

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	modelEmbedder := provideModelEmbedder(g, cfg)
	if modelEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	embedderOpts := []rag.EmbedderOption{}
	if cfg.Provider != config.ProviderOpenAI {
		// Google embedding models emit 3072 dimensions by default and
		// must be asked for the schema's 768.
		embedderOpts = append(embedderOpts, rag.WithReducedDimension())
	}
	a.Embedder, err = rag.NewGenkitEmbedder(modelEmbedder, logger, embedderOpts...)
	if err != nil {
		return nil, err
	}

	generator, err := rag.NewGenkitGenerator(g, cfg.FullModelName(), float64(cfg.Temperature), logger)
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = rag.NewPipeline(a.Episodes, a.Chunks, a.Embedder, generator, rag.PipelineConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
		SummaryTopK:  cfg.SummaryTopK,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.Scraper, err = scraper.New(scraper.Config{
		BaseURL:     cfg.Scraper.BaseURL,
		Parallelism: cfg.Scraper.Parallelism,
		Delay:       time.Duration(cfg.Scraper.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
		UserAgent:   cfg.Scraper.UserAgent,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.Sessions = session.NewManager(cfg.MaxHistoryTurns)

	return a, nil
}

// provideOtelShutdown registers an OTLP span exporter with Genkit's
// tracer provider. Disabled when no endpoint is configured. Must run
// before provideGenkit so the provider is ready when Genkit starts
// tracing.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if tc.Endpoint == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these at initialization.
	// os.Setenv is safe here: Setup runs once before any goroutines.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(tc.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled", "endpoint", tc.Endpoint, "service", tc.ServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the connection pool.
// pgvector types are registered on every new connection so vector
// parameters and scans work without casts.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured model provider.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit
	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
	default: // gemini, googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
	}

	logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
	return g, nil
}

// provideModelEmbedder looks up the provider's embedding model.
func provideModelEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		// OpenAI auto-registers embedders in Init.
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini, googleai
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
