package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

type retrieverFake struct {
	query   string
	topK    int
	filter  domain.SearchFilter
	results []domain.ScoredResult
	err     error
}

func (f *retrieverFake) Retrieve(_ context.Context, query string, topK int, filter domain.SearchFilter) (RetrievalOutcome, error) {
	f.query = query
	f.topK = topK
	f.filter = filter
	if f.err != nil {
		return RetrievalOutcome{}, f.err
	}
	return RetrievalOutcome{Results: f.results}, nil
}

type generatorFake struct {
	answer   string
	err      error
	question string
	recent   []domain.ConversationTurn
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, _ []domain.ScoredResult, recent []domain.ConversationTurn) (string, error) {
	f.question = question
	f.recent = recent
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newQueryFixture(answer string) (*QueryUseCase, *retrieverFake, *generatorFake, *sessionStoreFake) {
	store := newSessionStoreFake()
	mem := newTestMemory(store, 6, MemoryOptions{})
	retriever := &retrieverFake{results: []domain.ScoredResult{{Chunk: &domain.Chunk{Filename: "aapl.pdf"}, Score: 0.9}}}
	generator := &generatorFake{answer: answer}
	uc := NewQueryUseCase(retriever, generator, mem, &denseIndexFake{}, 5, nil)
	return uc, retriever, generator, store
}

func TestQueryAnswerCompareAfterNetIncomeTurn(t *testing.T) {
	uc, retriever, _, store := newQueryFixture("Net income fell.")
	store.turns["s1"] = []domain.ConversationTurn{{
		UserQuery:  "What was the net income in 2019?",
		AIResponse: "Net income was $55B in 2019.",
	}}

	result, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "Compare revenue vs 2020", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if retriever.topK != 8 {
		t.Fatalf("expected comparison top_k 8, got %d", retriever.topK)
	}
	if result.RewrittenQuery != nil {
		t.Fatalf("complete question must not be rewritten, got %q", *result.RewrittenQuery)
	}
	if got := RewriteQuery("Compare revenue vs 2020", store.turns["s1"][:1]); got != "What was the net income in 2020?" {
		t.Fatalf("unexpected rewrite %q", got)
	}
}

func TestQueryAnswerRewritesFollowUp(t *testing.T) {
	uc, retriever, generator, store := newQueryFixture("Revenue was $383B.")
	store.turns["s1"] = []domain.ConversationTurn{{UserQuery: "What was revenue in 2022?", AIResponse: "$394B"}}

	result, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "2023?", SessionID: "s1", Filename: "aapl.pdf"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.RewrittenQuery == nil || *result.RewrittenQuery != "What was the revenue in 2023?" {
		t.Fatalf("unexpected rewritten query %v", result.RewrittenQuery)
	}
	if retriever.query != "What was the revenue in 2023?" || generator.question != retriever.query {
		t.Fatalf("expected rewritten query to drive retrieval and generation, got %q / %q", retriever.query, generator.question)
	}
	if retriever.filter.Filename != "aapl.pdf" || result.FilterFilename == nil || *result.FilterFilename != "aapl.pdf" {
		t.Fatalf("expected filename filter to be applied")
	}
	if len(generator.recent) != 1 {
		t.Fatalf("expected history passed to generator, got %d turns", len(generator.recent))
	}
	if result.Query != "2023?" || result.NumChunks != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := len(store.turns["s1"]); got != 2 {
		t.Fatalf("expected turn stored, got %d turns", got)
	}
}

func TestQueryAnswerWidensMultiYearQueries(t *testing.T) {
	uc, retriever, _, _ := newQueryFixture("ok")

	if _, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "How did revenue change from 2021 to 2023?", TopK: 3}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if retriever.topK != 10 {
		t.Fatalf("expected multi-year top_k 10, got %d", retriever.topK)
	}

	if _, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "Describe the business", TopK: 12}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if retriever.topK != 12 {
		t.Fatalf("explicit larger top_k must be kept, got %d", retriever.topK)
	}
}

func TestQueryAnswerAssignsSessionID(t *testing.T) {
	uc, retriever, _, store := newQueryFixture("ok")

	result, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "Describe the business"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if retriever.topK != 5 {
		t.Fatalf("expected default top_k 5, got %d", retriever.topK)
	}
	if len(store.turns[result.SessionID]) != 1 {
		t.Fatalf("expected turn stored under generated session id")
	}
	if result.FilterFilename != nil {
		t.Fatalf("expected null filename filter")
	}
}

func TestQueryAnswerReportsMemoryError(t *testing.T) {
	uc, _, _, store := newQueryFixture("ok")
	store.appendErr = errors.New("redis down")

	result, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "Describe the business", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.MemoryError == "" {
		t.Fatalf("expected memory_error to be reported")
	}
}

func TestQueryAnswerProceedsWhenHistoryUnavailable(t *testing.T) {
	uc, retriever, _, store := newQueryFixture("ok")
	store.readErr = errors.New("redis down")

	result, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "2023?", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.RewrittenQuery != nil || retriever.query != "2023?" {
		t.Fatalf("expected query to run without context, got %q", retriever.query)
	}
}

func TestQueryAnswerRejectsEmptyQuery(t *testing.T) {
	uc, _, _, _ := newQueryFixture("ok")
	if _, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryAnswerPropagatesGeneratorError(t *testing.T) {
	uc, _, generator, store := newQueryFixture("")
	generator.err = errors.New("llm timeout")

	if _, err := uc.Answer(context.Background(), domain.QueryRequest{Query: "Describe the business", SessionID: "s1"}); err == nil {
		t.Fatalf("expected error")
	}
	if len(store.turns["s1"]) != 0 {
		t.Fatalf("failed answers must not be stored")
	}
}

func TestQueryStreamStoresOnlyDeliveredAnswers(t *testing.T) {
	uc, _, _, store := newQueryFixture("Revenue grew 8%.")

	var chunks []string
	_, err := uc.Stream(context.Background(), domain.QueryRequest{Query: "Describe revenue", SessionID: "s1"}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "Revenue grew 8%." {
		t.Fatalf("expected a single full-text chunk, got %v", chunks)
	}
	if len(store.turns["s1"]) != 1 {
		t.Fatalf("expected streamed turn stored")
	}

	_, err = uc.Stream(context.Background(), domain.QueryRequest{Query: "Describe revenue", SessionID: "s2"}, func(string) error {
		return errors.New("client gone")
	})
	if err == nil {
		t.Fatalf("expected emit error")
	}
	if len(store.turns["s2"]) != 0 {
		t.Fatalf("undelivered answer must not be stored")
	}
}

func TestQueryStreamReportsMemoryError(t *testing.T) {
	uc, _, _, store := newQueryFixture("Revenue grew 8%.")
	store.appendErr = errors.New("redis down")

	result, err := uc.Stream(context.Background(), domain.QueryRequest{Query: "Describe revenue", SessionID: "s1"}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !strings.Contains(result.MemoryError, "redis down") {
		t.Fatalf("expected lost turn on the streamed result, got %q", result.MemoryError)
	}
}

func TestQueryStreamSkipsEmptyAnswers(t *testing.T) {
	uc, _, _, store := newQueryFixture("")

	if _, err := uc.Stream(context.Background(), domain.QueryRequest{Query: "Describe revenue", SessionID: "s1"}, func(string) error { return nil }); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(store.turns["s1"]) != 0 {
		t.Fatalf("empty answer must not be stored")
	}
}

func TestQueryCorpusStats(t *testing.T) {
	dense := &denseIndexFake{stats: domain.CorpusStats{TotalChunks: 12, UniqueDocuments: 1, Documents: []string{"aapl.pdf"}}}
	uc := NewQueryUseCase(&retrieverFake{}, &generatorFake{}, nil, dense, 5, nil)

	stats, err := uc.CorpusStats(context.Background())
	if err != nil {
		t.Fatalf("CorpusStats() error = %v", err)
	}
	if stats.TotalChunks != 12 || len(stats.Documents) != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAdjustTopK(t *testing.T) {
	cases := []struct {
		topK    int
		queries []string
		want    int
	}{
		{topK: 5, queries: []string{"What was revenue?"}, want: 5},
		{topK: 5, queries: []string{"revenue versus costs"}, want: 8},
		{topK: 5, queries: []string{"2023?", "What was the revenue between 2022 and 2023?"}, want: 10},
		{topK: 15, queries: []string{"compare 2021 and 2022"}, want: 15},
	}
	for _, tc := range cases {
		if got := adjustTopK(tc.topK, tc.queries...); got != tc.want {
			t.Fatalf("adjustTopK(%d, %v) = %d, want %d", tc.topK, tc.queries, got, tc.want)
		}
	}
}
