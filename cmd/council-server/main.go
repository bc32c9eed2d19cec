// Command council-server serves the LLM council HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-council/infrastructure/api"
	"github.com/ahrav/go-council/infrastructure/files"
	"github.com/ahrav/go-council/infrastructure/llm"
	"github.com/ahrav/go-council/infrastructure/middleware"
	"github.com/ahrav/go-council/infrastructure/storage"
	"github.com/ahrav/go-council/infrastructure/tools"
	"github.com/ahrav/go-council/internal/application"
	"github.com/ahrav/go-council/internal/config"
	"github.com/ahrav/go-council/internal/observability"
	"github.com/ahrav/go-council/internal/ports"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "council-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	councilCfg := application.DefaultCouncilConfig()
	if cfg.CouncilConfig != "" {
		if councilCfg, err = application.LoadCouncilConfig(cfg.CouncilConfig); err != nil {
			return err
		}
	}

	metrics := middleware.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	router, err := llm.NewRouter(ctx, llm.RouterConfig{
		OpenAI:    llm.ClientConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL},
		Anthropic: llm.ClientConfig{APIKey: cfg.AnthropicAPIKey, BaseURL: cfg.AnthropicBaseURL},
		Google: llm.ClientConfig{
			APIKey:      cfg.GoogleAPIKey,
			BaseURL:     cfg.GoogleBaseURL,
			UseVertexAI: cfg.UseVertexAI,
			Project:     cfg.GCPProject,
			Location:    cfg.GCPLocation,
		},
		Loop: llm.LoopConfig{
			MaxToolRounds:   councilCfg.MaxToolRounds,
			ToolResultLimit: councilCfg.ToolResultLimit,
		},
		Middleware: providerMiddleware(cfg, metrics),
		Logger:     observability.WithComponent(logger, "llm"),
	})
	if err != nil {
		return fmt.Errorf("failed to build providers: %w", err)
	}

	store, catalog, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	fileManager, err := files.NewManager(cfg.FilesDir, catalog, observability.WithComponent(logger, "files"))
	if err != nil {
		return err
	}

	toolCfg := tools.Config{SearchAPIKey: cfg.SearchAPIKey}
	toolRegistry := tools.NewDefaultRegistry(toolCfg)
	connectors := tools.NewDefaultConnectors(toolCfg)

	council := application.NewCouncil(router, councilCfg,
		application.WithObserver(middleware.NewOTelStageObserver(metrics)),
		application.WithLogger(observability.WithComponent(logger, "council")),
	)
	turns := application.NewTurnService(council, application.TurnDeps{
		Store:      store,
		Files:      fileManager,
		Tools:      toolRegistry,
		Connectors: connectors,
		Logger:     observability.WithComponent(logger, "turn"),
	})

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(api.Deps{
		Store:      store,
		Files:      fileManager,
		Turns:      turns,
		Optimizer:  application.NewPromptOptimizer(council),
		Templates:  application.DefaultTemplateCatalog(),
		Tools:      toolRegistry,
		Connectors: connectors,
		Metrics:    promhttp.Handler(),
		Logger:     observability.WithComponent(logger, "api"),
	}, api.Options{CORSOrigins: cfg.CORSOrigins, MaxUploadBytes: cfg.MaxUploadBytes})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("council server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// providerMiddleware builds the chain applied to every provider family.
// The first element is the outermost wrapper.
func providerMiddleware(cfg config.Config, metrics *middleware.PrometheusMetrics) []llm.Middleware {
	mw := []llm.Middleware{
		llm.TracingMiddleware("council"),
		llm.MetricsMiddleware(metrics),
	}
	if cfg.CircuitBreakerFailures > 0 {
		mw = append(mw, llm.CircuitBreakerMiddlewareWithMetrics(
			cfg.CircuitBreakerFailures, cfg.CircuitBreakerCooldown, metrics.CircuitBreakerMetrics()))
	}
	if cfg.ProviderRateLimit > 0 {
		mw = append(mw, llm.RateLimitMiddleware(rate.Limit(cfg.ProviderRateLimit), cfg.ProviderRateBurst))
	}
	return mw
}

// openStore selects Postgres when a database URL is set and JSON files
// otherwise. A nil catalog keeps file metadata in JSON manifests.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ports.ConversationStore, ports.FileCatalog, func(), error) {
	if cfg.DatabaseURL == "" {
		store, err := storage.NewJSONStore(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info().Str("dir", cfg.DataDir).Msg("using JSON conversation store")
		return store, nil, func() {}, nil
	}

	pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, nil, err
	}
	logger.Info().Msg("using Postgres conversation store")
	return pg, pg, pg.Close, nil
}
