package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filing-assistant/internal/config"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
	"github.com/kirillkom/filing-assistant/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg           config.Config
	ingest        ports.DocumentIngestor
	query         ports.QueryService
	filings       ports.DocumentReader
	conversations ports.ConversationService
	metrics       *metrics.HTTPServerMetrics
	breakers      func() map[string]string
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	query ports.QueryService,
	filings ports.DocumentReader,
	conversations ports.ConversationService,
) *Router {
	return &Router{
		cfg:           cfg,
		ingest:        ingest,
		query:         query,
		filings:       filings,
		conversations: conversations,
	}
}

// WithMetrics enables request and RAG metrics and the /metrics endpoint.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

// WithBreakerStates adds outbound circuit breaker states to /healthz.
func (rt *Router) WithBreakerStates(fn func() map[string]string) *Router {
	rt.breakers = fn
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("/v1/filings", rt.uploadFiling)
	mux.HandleFunc("/v1/filings/", rt.getFilingByID)

	mux.HandleFunc("/rag/query", rt.queryRAG)
	mux.HandleFunc("/rag/stream", rt.streamRAG)
	mux.HandleFunc("/rag/stats", rt.corpusStats)

	mux.HandleFunc("/conversation/history/", rt.conversationHistory)
	mux.HandleFunc("/conversation/stats/", rt.conversationStats)
	mux.HandleFunc("/conversation/test-rewrite", rt.testRewrite)
	mux.HandleFunc("/conversation/force-summarize/", rt.forceSummarize)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if rt.breakers != nil {
		resp["breakers"] = rt.breakers()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) uploadFiling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if rt.cfg.APIMaxUploadBytes > 0 {
		if r.ContentLength > rt.cfg.APIMaxUploadBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "filing exceeds upload limit"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "filing exceeds upload limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getFilingByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	id, ok := pathID(r.URL.Path, "/v1/filings/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filing id is required"})
		return
	}

	doc, err := rt.filings.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pathID extracts the trailing id segment after prefix.
func pathID(path, prefix string) (string, bool) {
	id := strings.TrimPrefix(path, prefix)
	if id == "" || id == path || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
