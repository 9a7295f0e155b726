package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const (
	defaultQueryTopK    = 5
	comparisonTopK      = 8
	multiYearTopK       = 10
	answerContextTurns  = 3
	corpusStatsDocLimit = 100
)

var comparisonMarkers = []string{"compare", "vs", "versus", "between"}

type chunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (RetrievalOutcome, error)
}

type sessionMemory interface {
	History(ctx context.Context, sessionID string, limit int) (domain.SessionHistory, error)
	AddTurn(ctx context.Context, sessionID, userQuery, aiResponse string) error
}

// QueryUseCase answers a question against the indexed filings, using the
// session history to rewrite follow-ups and to ground the answer.
type QueryUseCase struct {
	retriever   chunkRetriever
	generator   ports.AnswerGenerator
	memory      sessionMemory
	dense       ports.DenseIndex
	defaultTopK int
	logger      *slog.Logger
}

func NewQueryUseCase(
	retriever chunkRetriever,
	generator ports.AnswerGenerator,
	memory sessionMemory,
	dense ports.DenseIndex,
	defaultTopK int,
	logger *slog.Logger,
) *QueryUseCase {
	if defaultTopK <= 0 {
		defaultTopK = defaultQueryTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		retriever:   retriever,
		generator:   generator,
		memory:      memory,
		dense:       dense,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	result, err := uc.run(ctx, req)
	if err != nil {
		return nil, err
	}
	uc.rememberTurn(ctx, result)
	return result, nil
}

// Stream emits the answer as a single chunk. The turn is stored only when the
// answer is non-empty and the chunk was delivered.
func (uc *QueryUseCase) Stream(ctx context.Context, req domain.QueryRequest, emit func(chunk string) error) (*domain.QueryResult, error) {
	result, err := uc.run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := emit(result.Answer); err != nil {
		return result, fmt.Errorf("emit answer: %w", err)
	}
	if strings.TrimSpace(result.Answer) != "" {
		uc.rememberTurn(ctx, result)
	}
	return result, nil
}

func (uc *QueryUseCase) CorpusStats(ctx context.Context) (domain.CorpusStats, error) {
	stats, err := uc.dense.Stats(ctx, corpusStatsDocLimit)
	if err != nil {
		return domain.CorpusStats{}, fmt.Errorf("corpus stats: %w", err)
	}
	if stats.Documents == nil {
		stats.Documents = []string{}
	}
	return stats, nil
}

func (uc *QueryUseCase) run(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "rag query", errors.New("query is required"))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history := uc.loadHistory(ctx, sessionID)

	searchQuery := query
	var rewritten *string
	if len(history) > 0 && IsFollowUp(query) {
		candidate := RewriteQuery(query, history)
		if candidate != query {
			rewritten = &candidate
			searchQuery = candidate
			uc.logger.Info("query_rewritten", "session_id", sessionID, "original", query, "rewritten", candidate)
		}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = uc.defaultTopK
	}
	topK = adjustTopK(topK, query, searchQuery)

	filter := domain.SearchFilter{Filename: strings.TrimSpace(req.Filename)}
	outcome, err := uc.retriever.Retrieve(ctx, searchQuery, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}

	answer, err := uc.generator.GenerateAnswer(ctx, searchQuery, outcome.Results, lastTurns(history, answerContextTurns))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	results := outcome.Results
	if results == nil {
		results = []domain.ScoredResult{}
	}
	var filterFilename *string
	if filter.Filename != "" {
		filterFilename = &filter.Filename
	}

	return &domain.QueryResult{
		Query:           query,
		RewrittenQuery:  rewritten,
		Answer:          answer,
		RetrievedChunks: results,
		NumChunks:       len(results),
		FilterFilename:  filterFilename,
		SessionID:       sessionID,
	}, nil
}

func (uc *QueryUseCase) loadHistory(ctx context.Context, sessionID string) []domain.ConversationTurn {
	if uc.memory == nil {
		return nil
	}
	history, err := uc.memory.History(ctx, sessionID, 0)
	if err != nil {
		uc.logger.Warn("history_load_failed", "session_id", sessionID, "error", err)
		return nil
	}
	return history.Turns
}

func (uc *QueryUseCase) rememberTurn(ctx context.Context, result *domain.QueryResult) {
	if uc.memory == nil {
		return
	}
	if err := uc.memory.AddTurn(ctx, result.SessionID, result.Query, result.Answer); err != nil {
		uc.logger.Warn("turn_store_failed", "session_id", result.SessionID, "error", err)
		result.MemoryError = err.Error()
	}
}

// adjustTopK widens retrieval for comparison and multi-year questions.
func adjustTopK(topK int, queries ...string) int {
	for _, q := range queries {
		lower := strings.ToLower(q)
		for _, marker := range comparisonMarkers {
			if strings.Contains(lower, marker) {
				topK = max(topK, comparisonTopK)
				break
			}
		}
		if len(filingYearPattern.FindAllString(q, -1)) > 1 {
			topK = max(topK, multiYearTopK)
		}
	}
	return topK
}

func lastTurns(turns []domain.ConversationTurn, n int) []domain.ConversationTurn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
