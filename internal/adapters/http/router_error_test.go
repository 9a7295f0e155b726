package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/filing-assistant/internal/config"
	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

type ingestErrFake struct {
	err error
}

func (f ingestErrFake) Upload(context.Context, string, string, io.Reader) (*domain.Document, error) {
	return nil, f.err
}

type queryFake struct {
	err      error
	result   *domain.QueryResult
	stats    domain.CorpusStats
	lastReq  *domain.QueryRequest
	emitted  []string
	emitErrs []error
}

func (f *queryFake) Answer(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	if f.lastReq != nil {
		*f.lastReq = req
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.QueryResult{Query: req.Query, Answer: "ok", RetrievedChunks: []domain.ScoredResult{}, SessionID: "s-1"}, nil
}

func (f *queryFake) Stream(ctx context.Context, req domain.QueryRequest, emit func(string) error) (*domain.QueryResult, error) {
	result, err := f.Answer(ctx, req)
	if err != nil {
		return nil, err
	}
	emitErr := emit(result.Answer)
	f.emitted = append(f.emitted, result.Answer)
	f.emitErrs = append(f.emitErrs, emitErr)
	return result, emitErr
}

func (f *queryFake) CorpusStats(context.Context) (domain.CorpusStats, error) {
	if f.err != nil {
		return domain.CorpusStats{}, f.err
	}
	return f.stats, nil
}

type docsErrFake struct {
	err error
}

func (f docsErrFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: "f-1", Filename: "acme-10k.pdf", MimeType: "application/pdf", StoragePath: "f-1_acme-10k.pdf", Status: domain.StatusReady}, nil
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, ingestErrFake{}, &queryFake{}, docsErrFake{}, &conversationFake{}).Handler()
}

func TestQueryRagMapsDomainInvalidInputTo400(t *testing.T) {
	handler := NewRouter(
		config.Config{RAGTopK: 5},
		nil,
		&queryFake{err: domain.WrapError(domain.ErrInvalidInput, "rag query", errors.New("bad query"))},
		docsErrFake{},
		&conversationFake{},
	).Handler()

	payload, _ := json.Marshal(map[string]any{"query": "test"})
	req := httptest.NewRequest(http.MethodPost, "/rag/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestQueryRagMapsTemporaryFailureTo503(t *testing.T) {
	handler := NewRouter(
		config.Config{RAGTopK: 5},
		nil,
		&queryFake{err: domain.WrapError(domain.ErrTemporary, "ollama embed", errors.New("connection refused"))},
		docsErrFake{},
		&conversationFake{},
	).Handler()

	payload, _ := json.Marshal(map[string]any{"query": "What are the main risk factors?"})
	req := httptest.NewRequest(http.MethodPost, "/rag/query", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestGetFilingByIDReturns404ForNotFound(t *testing.T) {
	handler := NewRouter(
		config.Config{RAGTopK: 5},
		nil,
		&queryFake{},
		docsErrFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get filing", errors.New("id=missing"))},
		&conversationFake{},
	).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/filings/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrDocumentNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrSessionStore, "op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
