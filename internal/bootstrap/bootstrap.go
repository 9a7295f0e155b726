package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/filing-assistant/internal/config"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
	"github.com/kirillkom/filing-assistant/internal/core/usecase"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/extractor/filing"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/lexical/bleveindex"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/resilience"
	sessionredis "github.com/kirillkom/filing-assistant/internal/infrastructure/session/redis"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/tokenizer"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/vector/qdrant"
)

const summaryLockTTL = 30 * time.Second

type Options struct {
	Logger *slog.Logger
	// OnSummary is called after each conversation summary is written.
	OnSummary func()
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue         ports.MessageQueue
	Repo          ports.DocumentRepository
	IngestUC      *usecase.IngestDocumentUseCase
	ProcessUC     ports.DocumentProcessor
	QueryUC       ports.QueryService
	Conversations ports.ConversationService
	Resilience    *resilience.Executor

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(resilienceConfig(cfg), resilience.WithLogger(logger))
	app.Resilience = executor

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	repo := postgres.NewFilingRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.onClose(queue.Close)

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            time.Duration(cfg.APIRequestTimeoutSecond) * time.Second,
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	completer := ollama.NewCompleter(ollamaClient)
	generator := ollama.NewGenerator(completer)

	dense := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	lexical, err := newLexicalIndex(cfg, app)
	if err != nil {
		return nil, err
	}

	redisClient, err := sessionredis.NewClient(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	app.onClose(func() { _ = redisClient.Close() })
	sessions := sessionredis.NewStore(redisClient, logger)
	if err := sessions.Ping(ctx); err != nil {
		// Queries still answer without memory; conversation endpoints report 503.
		logger.Warn("session_store_unreachable", "error", err)
	}

	tokens, err := tokenizer.New(cfg.TokenizerEncoding)
	if err != nil {
		logger.Warn("tokenizer_fallback", "encoding", cfg.TokenizerEncoding, "error", err)
	}

	memoryOpts := usecase.MemoryOptions{
		OnSummary: opts.OnSummary,
		Logger:    logger,
	}
	if cfg.MemoryLLMSummaryEnabled {
		memoryOpts.Summarizer = completer
	}
	if cfg.MemorySummaryLockEnabled {
		memoryOpts.Locker = sessionredis.NewLock(redisClient)
	}
	memory := usecase.NewConversationMemory(sessions, tokens, usecase.MemoryConfig{
		MaxRecentTurns:       cfg.MemoryMaxRecentTurns,
		MaxTotalTokens:       cfg.MemoryMaxTotalTokens,
		SessionTTL:           time.Duration(cfg.MemorySessionTTLSeconds) * time.Second,
		SummarizationEnabled: cfg.MemorySummarizationEnabled,
		SummaryLockTTL:       summaryLockTTL,
	}, memoryOpts)

	retriever := usecase.NewHybridRetriever(embedder, dense, lexical, cfg.RAGHybridAlpha, logger)
	chunker := chunking.NewSplitter(cfg.ChunkWords, cfg.ChunkOverlapWords)
	loader := filing.NewLoader(storage, logger)

	app.Queue = queue
	app.Repo = repo
	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(repo, loader, chunker, embedder, dense, lexical, logger)
	app.QueryUC = usecase.NewQueryUseCase(retriever, generator, memory, dense, cfg.RAGTopK, logger)
	app.Conversations = memory

	ok = true
	return app, nil
}

func newLexicalIndex(cfg config.Config, app *App) (ports.LexicalIndex, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LexicalBackend)) {
	case config.LexicalBackendBleve:
		idx, err := bleveindex.Open(cfg.BleveIndexPath)
		if err != nil {
			return nil, fmt.Errorf("init bleve index: %w", err)
		}
		app.onClose(func() { _ = idx.Close() })
		return idx, nil
	case config.LexicalBackendQdrant, "":
		return qdrant.NewLexicalClient(cfg.QdrantURL, cfg.QdrantLexicalCollection), nil
	default:
		return nil, fmt.Errorf("unknown lexical backend %q", cfg.LexicalBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio: cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:  time.Duration(cfg.ResilienceBreakerOpenTimeoutMS) * time.Millisecond,
	}
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
