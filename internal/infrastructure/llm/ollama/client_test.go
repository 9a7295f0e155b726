package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/resilience"
)

func TestGeneratorBuildsCitationPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":" revenue grew 12% [1] "}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	gen := NewGenerator(NewCompleter(client))
	results := []domain.ScoredResult{
		{Chunk: &domain.Chunk{
			Filename:  "acme-10k.pdf",
			Section:   "ITEM 7.",
			Text:      "Revenue increased 12% year over year.",
			PageRange: [2]int{40, 42},
			CrossReferences: []domain.CrossReference{
				{TargetSection: "ITEM 8."}, {TargetSection: "ITEM 1A."}, {TargetSection: "ITEM 2."}, {TargetSection: "ITEM 9."},
			},
		}},
		{Chunk: &domain.Chunk{Section: "ITEM 1.", Text: "We face intense competition.", PageRange: [2]int{3, 3}}},
	}
	recent := []domain.ConversationTurn{{UserQuery: "what about 2022?", AIResponse: "Revenue was $10M."}}

	answer, err := gen.GenerateAnswer(context.Background(), "How did revenue change?", results, recent)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if answer != "revenue grew 12% [1]" {
		t.Fatalf("expected trimmed answer, got %q", answer)
	}

	for _, want := range []string{
		"[1] ITEM 7. (FINANCIAL, pp.40-42) [Refs: → ITEM 8., → ITEM 1A., → ITEM 2.]",
		"[2] ITEM 1. (OPERATIONAL, p.3)",
		"Recent Conversation:\nUser: what about 2022?\nAI: Revenue was $10M.",
		"Question: How did revenue change?",
		`say "I don't know"`,
	} {
		if !strings.Contains(capturedPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, capturedPrompt)
		}
	}
	if strings.Contains(capturedPrompt, "ITEM 9.") {
		t.Fatalf("expected at most three references in citation")
	}
}

func TestMateriality(t *testing.T) {
	cases := []struct {
		section string
		text    string
		want    string
	}{
		{"ITEM 1A.", "Our debt may limit flexibility.", "HIGH RISK"},
		{"ITEM 8.", "Net loss for the period.", "FINANCIAL"},
		{"ITEM 1.", "Government regulation applies.", "OPERATIONAL"},
		{"ITEM 2.", "Net profit rose.", "INFORMATIONAL"},
		{"ITEM 5.", "Holders of record.", "INFORMATIONAL"},
	}
	for _, tc := range cases {
		if got := materiality(tc.section, tc.text); got != tc.want {
			t.Fatalf("materiality(%q, %q) = %q, want %q", tc.section, tc.text, got, tc.want)
		}
	}
}

func TestConversationBlockEmptyWithoutHistory(t *testing.T) {
	prompt := buildAnswerPrompt("q", nil, nil)
	if strings.Contains(prompt, "Recent Conversation") {
		t.Fatalf("did not expect conversation block: %s", prompt)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be temporary, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPStatusError with 502, got %v", err)
	}
}

func TestEmbedRetriesThroughExecutor(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		BreakerEnabled:      false,
	})
	client := NewWithOptions(server.URL, "gen", "embed", Options{ResilienceExecutor: exec})
	vector, err := NewEmbedder(client).EmbedQuery(context.Background(), "revenue")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry then success, vector=%v calls=%d", vector, calls)
	}
}

func TestBadRequestIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewCompleter(New(server.URL, "gen", "embed")).Complete(context.Background(), "hi")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary: %v", err)
	}
}
