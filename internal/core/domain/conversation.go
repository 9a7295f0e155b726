package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// ApproxTokenCount estimates one token per four characters. It is used
// wherever no real tokenizer is available.
func ApproxTokenCount(text string) int {
	return utf8.RuneCountInString(text) / 4
}

type ConversationTurn struct {
	UserQuery  string    `json:"user_query"`
	AIResponse string    `json:"ai_response"`
	Timestamp  time.Time `json:"timestamp"`
}

// Text is the form used for token accounting and summarization prompts.
func (t ConversationTurn) Text() string {
	return fmt.Sprintf("User: %s\nAI: %s", t.UserQuery, t.AIResponse)
}

const SummaryRecordType = "summary"

// ConversationSummary is the single rolling summary of a session's older turns.
type ConversationSummary struct {
	SummaryText    string `json:"summary_text"`
	TurnCount      int    `json:"turn_count"`
	TimestampRange string `json:"timestamp_range"`
	Type           string `json:"type"`
}

// SessionHistory is the summary (if any) plus the raw recent turns, oldest first.
type SessionHistory struct {
	Summary *ConversationSummary
	Turns   []ConversationTurn
}

type TokenUsage struct {
	Total   int `json:"total"`
	Recent  int `json:"recent"`
	Summary int `json:"summary"`
	Max     int `json:"max"`
}

type ConversationCounts struct {
	RecentTurnsCount     int  `json:"recent_turns_count"`
	MaxRecentTurns       int  `json:"max_recent_turns"`
	SummarizedTurnsCount int  `json:"summarized_turns_count"`
	HasSummary           bool `json:"has_summary"`
}

type SummarizationStatus struct {
	Enabled               bool    `json:"enabled"`
	WillSummarizeNext     bool    `json:"will_summarize_next"`
	SummaryTimestampRange *string `json:"summary_timestamp_range"`
}

type MemoryStats struct {
	SessionID           string              `json:"session_id"`
	TokenUsage          TokenUsage          `json:"token_usage"`
	ConversationStats   ConversationCounts  `json:"conversation_stats"`
	SummarizationStatus SummarizationStatus `json:"summarization_status"`
}

type SummarySnapshot struct {
	RecentTurns      int     `json:"recent_turns"`
	HasSummary       bool    `json:"has_summary"`
	SummaryTurnCount int     `json:"summary_turn_count"`
	SummaryText      *string `json:"summary_text,omitempty"`
}

// SummarizeOutcome reports the state of a session around a forced summarization.
type SummarizeOutcome struct {
	SessionID      string           `json:"session_id"`
	Message        string           `json:"message"`
	TurnsAvailable *int             `json:"turns_available,omitempty"`
	Before         *SummarySnapshot `json:"before,omitempty"`
	After          *SummarySnapshot `json:"after,omitempty"`
}

// RewritePreview is the result of running the follow-up pipeline on a supplied history.
type RewritePreview struct {
	OriginalQuery  string `json:"original_query"`
	IsFollowUp     bool   `json:"is_followup"`
	RewrittenQuery string `json:"rewritten_query"`
	HistoryUsed    int    `json:"history_used"`
}
