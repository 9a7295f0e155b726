package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

type MemoryConfig struct {
	MaxRecentTurns       int
	MaxTotalTokens       int
	SessionTTL           time.Duration
	SummarizationEnabled bool
	SummaryLockTTL       time.Duration
}

func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxRecentTurns:       6,
		MaxTotalTokens:       2000,
		SessionTTL:           24 * time.Hour,
		SummarizationEnabled: true,
		SummaryLockTTL:       30 * time.Second,
	}
}

func (c MemoryConfig) normalize() MemoryConfig {
	out := c
	def := DefaultMemoryConfig()
	if out.MaxRecentTurns <= 0 {
		out.MaxRecentTurns = def.MaxRecentTurns
	}
	if out.MaxTotalTokens <= 0 {
		out.MaxTotalTokens = def.MaxTotalTokens
	}
	if out.SessionTTL <= 0 {
		out.SessionTTL = def.SessionTTL
	}
	if out.SummaryLockTTL <= 0 {
		out.SummaryLockTTL = def.SummaryLockTTL
	}
	return out
}

// MemoryOptions carries the optional collaborators of ConversationMemory.
type MemoryOptions struct {
	// Summarizer condenses old turns; nil means rule-based summaries only.
	Summarizer ports.Completer
	// Locker serializes summarization per session; nil leaves it unserialized.
	Locker    ports.SessionLocker
	OnSummary func()
	Now       func() time.Time
	Logger    *slog.Logger
}

// ConversationMemory is a summary-buffer memory: recent turns are kept raw,
// older ones are folded into one rolling summary.
type ConversationMemory struct {
	store      ports.SessionStore
	tokens     ports.TokenCounter
	summarizer ports.Completer
	locker     ports.SessionLocker
	cfg        MemoryConfig
	onSummary  func()
	now        func() time.Time
	logger     *slog.Logger
}

func NewConversationMemory(store ports.SessionStore, tokens ports.TokenCounter, cfg MemoryConfig, opts MemoryOptions) *ConversationMemory {
	if tokens == nil {
		tokens = approxTokenCounter{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationMemory{
		store:      store,
		tokens:     tokens,
		summarizer: opts.Summarizer,
		locker:     opts.Locker,
		cfg:        cfg.normalize(),
		onSummary:  opts.OnSummary,
		now:        now,
		logger:     logger,
	}
}

// History returns the summary and up to limit recent turns. limit <= 0 uses
// twice the configured recent-turn window.
func (m *ConversationMemory) History(ctx context.Context, sessionID string, limit int) (domain.SessionHistory, error) {
	if limit <= 0 {
		limit = m.cfg.MaxRecentTurns * 2
	}
	summary, err := m.loadSummary(ctx, sessionID)
	if err != nil {
		return domain.SessionHistory{}, err
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, limit)
	if err != nil {
		return domain.SessionHistory{}, fmt.Errorf("read recent turns: %w", err)
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	return domain.SessionHistory{Summary: summary, Turns: turns}, nil
}

func (m *ConversationMemory) AddTurn(ctx context.Context, sessionID, userQuery, aiResponse string) error {
	turn := domain.ConversationTurn{
		UserQuery:  userQuery,
		AIResponse: aiResponse,
		Timestamp:  m.now().UTC(),
	}
	if err := m.store.AppendTurn(ctx, sessionID, turn, m.cfg.SessionTTL); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	if !m.cfg.SummarizationEnabled {
		return nil
	}
	if _, err := m.summarizeIfNeeded(ctx, sessionID, m.cfg.MaxRecentTurns); err != nil {
		return fmt.Errorf("summarize session: %w", err)
	}
	return nil
}

func (m *ConversationMemory) Clear(ctx context.Context, sessionID string) error {
	if err := m.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (m *ConversationMemory) Stats(ctx context.Context, sessionID string) (domain.MemoryStats, error) {
	history, err := m.History(ctx, sessionID, 0)
	if err != nil {
		return domain.MemoryStats{}, err
	}

	recentTokens := m.turnTokens(history.Turns)
	summaryTokens := m.summaryTokens(history.Summary)
	total := recentTokens + summaryTokens

	stats := domain.MemoryStats{
		SessionID: sessionID,
		TokenUsage: domain.TokenUsage{
			Total:   total,
			Recent:  recentTokens,
			Summary: summaryTokens,
			Max:     m.cfg.MaxTotalTokens,
		},
		ConversationStats: domain.ConversationCounts{
			RecentTurnsCount: len(history.Turns),
			MaxRecentTurns:   m.cfg.MaxRecentTurns,
			HasSummary:       history.Summary != nil,
		},
		SummarizationStatus: domain.SummarizationStatus{
			Enabled:           m.cfg.SummarizationEnabled,
			WillSummarizeNext: float64(total) > 0.8*float64(m.cfg.MaxTotalTokens),
		},
	}
	if history.Summary != nil {
		stats.ConversationStats.SummarizedTurnsCount = history.Summary.TurnCount
		tsRange := history.Summary.TimestampRange
		stats.SummarizationStatus.SummaryTimestampRange = &tsRange
	}
	return stats, nil
}

// ForceSummarize folds every turn but the latest into the summary.
func (m *ConversationMemory) ForceSummarize(ctx context.Context, sessionID string) (domain.SummarizeOutcome, error) {
	before, err := m.History(ctx, sessionID, 0)
	if err != nil {
		return domain.SummarizeOutcome{}, err
	}
	if len(before.Turns) < 2 {
		available := len(before.Turns)
		return domain.SummarizeOutcome{
			SessionID:      sessionID,
			Message:        "Not enough turns to summarize (minimum 2 required)",
			TurnsAvailable: &available,
		}, nil
	}

	summarized, err := m.summarizeIfNeeded(ctx, sessionID, 1)
	if err != nil {
		return domain.SummarizeOutcome{}, fmt.Errorf("force summarize: %w", err)
	}

	after, err := m.History(ctx, sessionID, 0)
	if err != nil {
		return domain.SummarizeOutcome{}, err
	}
	message := "Summarization completed"
	if !summarized {
		message = "Summarization skipped: session is already being summarized"
	}
	return domain.SummarizeOutcome{
		SessionID: sessionID,
		Message:   message,
		Before:    snapshotOf(before),
		After:     snapshotOf(after),
	}, nil
}

func (m *ConversationMemory) PreviewRewrite(query string, history []domain.ConversationTurn) domain.RewritePreview {
	return PreviewRewrite(query, history)
}

func (m *ConversationMemory) CountTokens(text string) int {
	return m.tokens.CountTokens(text)
}

func (m *ConversationMemory) summarizeIfNeeded(ctx context.Context, sessionID string, keep int) (bool, error) {
	if m.locker != nil {
		lockName := "summary:" + sessionID
		acquired, err := m.locker.Acquire(ctx, lockName, m.cfg.SummaryLockTTL)
		if err != nil {
			return false, err
		}
		if !acquired {
			m.logger.Debug("summarization_skipped_locked", "session_id", sessionID)
			return false, nil
		}
		defer func() {
			if err := m.locker.Release(context.WithoutCancel(ctx), lockName); err != nil {
				m.logger.Warn("summary_lock_release_failed", "session_id", sessionID, "error", err)
			}
		}()
	}
	return m.checkAndSummarize(ctx, sessionID, keep)
}

// checkAndSummarize compacts the session when the raw turn count exceeds keep.
// The token budget only matters together with the count condition.
func (m *ConversationMemory) checkAndSummarize(ctx context.Context, sessionID string, keep int) (bool, error) {
	summary, err := m.loadSummary(ctx, sessionID)
	if err != nil {
		return false, err
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, 0)
	if err != nil {
		return false, fmt.Errorf("read turns: %w", err)
	}

	total := m.summaryTokens(summary) + m.turnTokens(turns)
	exceedsCount := len(turns) > keep
	shouldSummarize := total > m.cfg.MaxTotalTokens || exceedsCount
	if !shouldSummarize || !exceedsCount {
		return false, nil
	}

	if err := m.performSummarization(ctx, sessionID, summary, turns, keep); err != nil {
		return false, err
	}
	return true, nil
}

func (m *ConversationMemory) performSummarization(
	ctx context.Context,
	sessionID string,
	existing *domain.ConversationSummary,
	turns []domain.ConversationTurn,
	keep int,
) error {
	split := len(turns) - keep
	toSummarize := turns[:split]
	toKeep := turns[split:]

	priorCount := 0
	if existing != nil {
		priorCount = existing.TurnCount
	}
	summary := domain.ConversationSummary{
		SummaryText:    m.summaryText(ctx, toSummarize, existing),
		TurnCount:      len(toSummarize) + priorCount,
		TimestampRange: timestampRange(toSummarize),
		Type:           domain.SummaryRecordType,
	}

	if err := m.store.SaveSummary(ctx, sessionID, summary, m.cfg.SessionTTL); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if err := m.store.ReplaceTurns(ctx, sessionID, toKeep, m.cfg.SessionTTL); err != nil {
		return fmt.Errorf("replace turns: %w", err)
	}

	m.logger.Info("conversation_summarized",
		"session_id", sessionID,
		"summarized_turns", len(toSummarize),
		"kept_turns", len(toKeep),
		"summary_turn_count", summary.TurnCount,
	)
	if m.onSummary != nil {
		m.onSummary()
	}
	return nil
}

func (m *ConversationMemory) summaryText(ctx context.Context, turns []domain.ConversationTurn, existing *domain.ConversationSummary) string {
	if m.summarizer != nil {
		text, err := summarizeWithModel(ctx, m.summarizer, turns, existing)
		if err == nil {
			return text
		}
		m.logger.Warn("llm_summary_failed", "error", err)
	}
	return ruleBasedSummary(turns, existing)
}

// loadSummary treats a corrupt stored summary as absent.
func (m *ConversationMemory) loadSummary(ctx context.Context, sessionID string) (*domain.ConversationSummary, error) {
	summary, err := m.store.Summary(ctx, sessionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrCorruptRecord) {
			m.logger.Warn("summary_record_corrupt", "session_id", sessionID, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}
	return summary, nil
}

func (m *ConversationMemory) turnTokens(turns []domain.ConversationTurn) int {
	total := 0
	for _, t := range turns {
		total += m.tokens.CountTokens(t.Text())
	}
	return total
}

func (m *ConversationMemory) summaryTokens(summary *domain.ConversationSummary) int {
	if summary == nil {
		return 0
	}
	return m.tokens.CountTokens(summary.SummaryText)
}

func timestampRange(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	const day = "2006-01-02"
	return turns[0].Timestamp.Format(day) + " to " + turns[len(turns)-1].Timestamp.Format(day)
}

func snapshotOf(h domain.SessionHistory) *domain.SummarySnapshot {
	snap := &domain.SummarySnapshot{
		RecentTurns: len(h.Turns),
		HasSummary:  h.Summary != nil,
	}
	if h.Summary != nil {
		text := h.Summary.SummaryText
		snap.SummaryTurnCount = h.Summary.TurnCount
		snap.SummaryText = &text
	}
	return snap
}

// approxTokenCounter is the fallback when no counter is injected. It shares
// domain.ApproxTokenCount with tokenizer.ApproxCounter.
type approxTokenCounter struct{}

func (approxTokenCounter) CountTokens(text string) int {
	return domain.ApproxTokenCount(text)
}
