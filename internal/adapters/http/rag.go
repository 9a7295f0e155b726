package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

type ragQueryRequest struct {
	Query     string `json:"query"`
	Filename  string `json:"filename"`
	TopK      int    `json:"top_k"`
	SessionID string `json:"session_id"`
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (domain.QueryRequest, bool) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return domain.QueryRequest{}, false
	}

	var req ragQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return domain.QueryRequest{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return domain.QueryRequest{}, false
	}
	if req.TopK < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k must be positive"})
		return domain.QueryRequest{}, false
	}
	return domain.QueryRequest{
		Query:     req.Query,
		Filename:  req.Filename,
		TopK:      req.TopK,
		SessionID: req.SessionID,
	}, true
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := rt.query.Answer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.observeQuery("/rag/query", result, time.Since(start))

	writeJSON(w, http.StatusOK, result)
}

// streamRAG sends the answer as server-sent events. Headers are committed with
// the first chunk, so failures before it still get a JSON error.
func (rt *Router) streamRAG(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	started := false
	emit := func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := writeSSEData(w, chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	start := time.Now()
	result, err := rt.query.Stream(r.Context(), req, emit)
	if err != nil && !started {
		writeError(w, r, err)
		return
	}
	if err != nil {
		slog.Warn("rag_stream_interrupted",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		return
	}
	rt.observeQuery("/rag/stream", result, time.Since(start))

	if result.MemoryError != "" {
		_, _ = fmt.Fprint(w, "event: memory_error\n")
		_ = writeSSEData(w, result.MemoryError)
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSSEData frames a payload as one event; embedded newlines become
// continuation data lines.
func writeSSEData(w http.ResponseWriter, payload string) error {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := fmt.Fprint(w, b.String())
	return err
}

func (rt *Router) corpusStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stats, err := rt.query.CorpusStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) observeQuery(endpoint string, result *domain.QueryResult, duration time.Duration) {
	if rt.metrics == nil || result == nil {
		return
	}
	rt.metrics.RecordRAGObservation(serviceName, endpoint, result.NumChunks, duration)
	if len(result.RetrievedChunks) > 0 {
		rt.metrics.RecordRAGModeRequest(serviceName, endpoint, string(result.RetrievedChunks[0].SearchType))
	}
	if result.RewrittenQuery != nil {
		rt.metrics.RecordQueryRewrite(serviceName, endpoint)
	}
	if result.MemoryError != "" {
		rt.metrics.RecordMemoryError(serviceName, endpoint)
	}
	if rt.conversations != nil {
		promptTokens := rt.conversations.CountTokens(result.Query)
		for _, item := range result.RetrievedChunks {
			if item.Chunk != nil {
				promptTokens += rt.conversations.CountTokens(item.Chunk.Text)
			}
		}
		rt.metrics.RecordTokenUsage(serviceName, endpoint, rt.cfg.OllamaGenModel, promptTokens, rt.conversations.CountTokens(result.Answer))
	}
}
