// Package bootstrap wires the process: every dependency is constructed
// and validated here, at startup, and handed to the router explicitly.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karenmasterson/dns-gpt-backend/internal/config"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/guard"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/ports"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/usecase"
	"github.com/karenmasterson/dns-gpt-backend/internal/infrastructure/llm/openai"
	"github.com/karenmasterson/dns-gpt-backend/internal/infrastructure/queue/nats"
	"github.com/karenmasterson/dns-gpt-backend/internal/infrastructure/repository/postgres"
	"github.com/karenmasterson/dns-gpt-backend/internal/infrastructure/resilience"
	"github.com/karenmasterson/dns-gpt-backend/internal/infrastructure/vector/milvus"
	"github.com/karenmasterson/dns-gpt-backend/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Store    ports.VectorStore
	SearchUC *usecase.SearchUseCase
	Metrics  *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	serverMetrics := metrics.NewHTTPServerMetrics("api")
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	embedder := openai.NewEmbedder(openai.EmbedderConfig{
		APIKey:  cfg.EmbedAPIKey,
		BaseURL: cfg.EmbedBaseURL,
		Model:   cfg.EmbedModel,
		Dim:     cfg.EmbedDim,
	})
	// Warm-up probe: a misconfigured embedding provider should fail the
	// process at startup, not the first user request.
	if _, err := embedder.Embed(ctx, []string{"startup probe"}); err != nil {
		return nil, fmt.Errorf("embedder probe: %w", err)
	}

	store := milvus.New(milvus.Config{
		URI:          cfg.ZillizURI,
		Token:        cfg.ZillizToken,
		Collection:   cfg.CollectionName,
		VectorField:  cfg.VectorField,
		Dim:          cfg.EmbedDim,
		Timeout:      time.Duration(cfg.MilvusTimeoutSeconds) * time.Second,
		SearchEffort: cfg.SearchEffort,
	})
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect vector store: %w", err)
	}

	rerankTotal, degradedTotal := serverMetrics.RerankCounters()
	reranker := openai.NewReranker(openai.RerankerConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Enabled: cfg.RerankEnabled,
		Timeout: time.Duration(cfg.RerankTimeoutSeconds) * time.Second,
	}).
		WithExecutor(executor).
		WithMetrics(rerankTotal, degradedTotal)

	searchUC := usecase.NewSearchUseCase(
		guard.NewSanitizer(cfg.MaxQueryChars),
		guard.NewRateLimiter(cfg.RateLimitQPM),
		embedder,
		store,
		reranker,
	)

	closers := make([]func(), 0, 2)

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewQueryLogRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure query log schema: %w", err)
		}
		searchUC = searchUC.WithQueryLog(repo)
		closers = append(closers, func() { _ = db.Close() })
	} else {
		slog.Info("query log disabled, POSTGRES_DSN not set")
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		searchUC = searchUC.WithEventPublisher(publisher)
		closers = append(closers, publisher.Close)
	} else {
		slog.Info("event publishing disabled, NATS_URL not set")
	}

	return &App{
		Config:   cfg,
		Store:    store,
		SearchUC: searchUC,
		Metrics:  serverMetrics,

		closeFn: func() {
			for _, closeOne := range closers {
				closeOne()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
