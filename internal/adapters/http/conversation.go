package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

const defaultHistoryLimit = 10

type historySummary struct {
	Text           string `json:"text"`
	TurnCount      int    `json:"turn_count"`
	TimestampRange string `json:"timestamp_range"`
	TokenCount     int    `json:"token_count"`
}

type historyResponse struct {
	SessionID        string                    `json:"session_id"`
	RecentTurns      []domain.ConversationTurn `json:"recent_turns"`
	TotalRecentTurns int                       `json:"total_recent_turns"`
	Summary          *historySummary           `json:"summary"`
}

type rewriteRequest struct {
	Query   string                    `json:"query"`
	History []domain.ConversationTurn `json:"history"`
}

func (rt *Router) conversationHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r.URL.Path, "/conversation/history/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		rt.getHistory(w, r, sessionID)
	case http.MethodDelete:
		if err := rt.conversations.Clear(r.Context(), sessionID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"session_id": sessionID,
			"message":    "Conversation history cleared",
		})
	default:
		writeMethodNotAllowed(w)
	}
}

func (rt *Router) getHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	history, err := rt.conversations.History(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := historyResponse{
		SessionID:        sessionID,
		RecentTurns:      history.Turns,
		TotalRecentTurns: len(history.Turns),
	}
	if resp.RecentTurns == nil {
		resp.RecentTurns = []domain.ConversationTurn{}
	}
	if history.Summary != nil {
		resp.Summary = &historySummary{
			Text:           history.Summary.SummaryText,
			TurnCount:      history.Summary.TurnCount,
			TimestampRange: history.Summary.TimestampRange,
			TokenCount:     rt.conversations.CountTokens(history.Summary.SummaryText),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) conversationStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sessionID, ok := pathID(r.URL.Path, "/conversation/stats/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	stats, err := rt.conversations.Stats(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) testRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	writeJSON(w, http.StatusOK, rt.conversations.PreviewRewrite(req.Query, req.History))
}

func (rt *Router) forceSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	sessionID, ok := pathID(r.URL.Path, "/conversation/force-summarize/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	outcome, err := rt.conversations.ForceSummarize(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
