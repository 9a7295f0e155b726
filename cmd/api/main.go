package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/filing-assistant/internal/adapters/http"
	"github.com/kirillkom/filing-assistant/internal/bootstrap"
	"github.com/kirillkom/filing-assistant/internal/config"
	"github.com/kirillkom/filing-assistant/internal/observability/logging"
	"github.com/kirillkom/filing-assistant/internal/observability/metrics"
)

const embeddedIndexTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:    logger,
		OnSummary: func() { httpMetrics.RecordMemorySummary("api") },
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.EmbeddedIndexer {
		go runEmbeddedIndexer(ctx, app, logger)
	}

	router := httpadapter.NewRouter(cfg, app.IngestUC, app.QueryUC, app.IngestUC, app.Conversations).
		WithMetrics(httpMetrics).
		WithBreakerStates(app.Resilience.BreakerStates).
		Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      time.Duration(cfg.APIRequestTimeoutSecond+10) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "lexical_backend", cfg.LexicalBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

// runEmbeddedIndexer consumes upload events in-process. The bleve index holds
// a file lock, so with that backend the API must do its own indexing.
func runEmbeddedIndexer(ctx context.Context, app *bootstrap.App, logger *slog.Logger) {
	logger.Info("embedded_indexer_started", "subject", app.Config.NATSSubject)
	err := app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, filingID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, embeddedIndexTimeout)
		defer cancel()
		return app.ProcessUC.ProcessByID(processCtx, filingID)
	})
	if err != nil {
		logger.Error("embedded_indexer_stopped", "error", err)
	}
}
