// deskragd is the hybrid retrieval service: multi-tenant dense+sparse
// candidate search over Qdrant, RRF fusion, recency/error-code boosting
// and optional LLM reranking, served over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mhara/deskrag/internal/auth"
	"github.com/mhara/deskrag/internal/config"
	"github.com/mhara/deskrag/internal/embedder"
	"github.com/mhara/deskrag/internal/llm"
	"github.com/mhara/deskrag/internal/repository/postgres"
	"github.com/mhara/deskrag/internal/reranker"
	"github.com/mhara/deskrag/internal/retrieval"
	"github.com/mhara/deskrag/internal/server"
	"github.com/mhara/deskrag/internal/service"
	"github.com/mhara/deskrag/internal/source"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting deskragd",
		"environment", cfg.Environment,
		"http_port", cfg.HTTPPort,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL: tenant registry and per-tenant retrieval config.
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	tenantRepo := postgres.NewTenantRepo(db)

	// Qdrant: one hybrid collection per tenant, two candidate sources.
	qdrantClient, err := source.NewClient(cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	defer qdrantClient.Close()
	logger.Info("connected to qdrant", "url", cfg.QdrantGRPCURL)

	denseSource := source.NewDenseSource(qdrantClient)
	sparseSource := source.NewSparseSource(qdrantClient)

	embed := embedder.NewOllamaEmbedder(
		embedder.WithBaseURL(cfg.OllamaURL),
		embedder.WithModel(cfg.OllamaEmbeddingModel, cfg.OllamaEmbeddingDim),
	)
	logger.Info("embedder initialized", "model", embed.ModelName(), "dimension", embed.Dimension())

	pipelineOpts := []retrieval.PipelineOption{}
	if cfg.RerankerEnabled {
		llmClient := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaRerankModel),
		)
		rr := reranker.NewLLMReranker(llmClient, reranker.WithModel(cfg.OllamaRerankModel))
		pipelineOpts = append(pipelineOpts, retrieval.WithReranker(rr))
		logger.Info("reranker enabled", "model", cfg.OllamaRerankModel)
	}

	pipeline := retrieval.NewPipeline(denseSource, sparseSource, logger, pipelineOpts...)

	defaults := service.Defaults{
		Platform:             cfg.DefaultPlatform,
		TopK:                 cfg.DefaultTopK,
		RRFK:                 cfg.RRFK,
		DecayHalfLifeDays:    cfg.DecayHalfLifeDays,
		DecayFloor:           cfg.DecayFloor,
		ErrorBoostMultiplier: cfg.ErrorBoostMultiplier,
		RerankTopN:           cfg.RerankTopN,
		RerankerEnabled:      cfg.RerankerEnabled,
		Timeout:              cfg.RetrievalTimeout,
	}

	vectorizer := source.NewTermVectorizer(cfg.SparseMinTokenLen)
	retrievalSvc := service.NewRetrievalService(pipeline, embed, vectorizer, defaults, logger)

	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Expiry = cfg.JWTExpiry
	jwtManager := auth.NewJWTManager(jwtConfig)

	tenantSvc := service.NewTenantService(tenantRepo, qdrantClient, jwtManager, embed.Dimension(), defaults, logger)

	authMW := auth.NewMiddleware(tenantRepo, jwtManager, cfg.AdminAPIKey)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:       cfg.HTTPPort,
		Logger:     logger,
		ReadyCheck: db.Ping,
	}, authMW, retrievalSvc, tenantSvc)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start()
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("deskragd stopped")
	return nil
}

// newLogger builds a slog logger: JSON in production, text in development.
func newLogger(level, environment string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
