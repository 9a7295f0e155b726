package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

type embedderFake struct {
	mu         sync.Mutex
	vectors    [][]float32
	err        error
	queryErr   error
	embedCalls int
	queries    []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{0.1, 0.2}, nil
}

type denseIndexFake struct {
	hits          []domain.ChannelHit
	searchErr     error
	searchLimit   int
	sectionChunks []domain.Chunk
	sectionErr    error
	sectionCalls  []string
	indexErr      error
	indexed       []domain.Chunk
	stats         domain.CorpusStats
	statsErr      error
}

func (f *denseIndexFake) IndexChunks(_ context.Context, chunks []domain.Chunk, _ [][]float32) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, chunks...)
	return nil
}

func (f *denseIndexFake) Search(_ context.Context, _ []float32, limit int, _ domain.SearchFilter) ([]domain.ChannelHit, error) {
	f.searchLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *denseIndexFake) FetchBySection(_ context.Context, section string, _ int, _ domain.SearchFilter) ([]domain.Chunk, error) {
	f.sectionCalls = append(f.sectionCalls, section)
	if f.sectionErr != nil {
		return nil, f.sectionErr
	}
	return f.sectionChunks, nil
}

func (f *denseIndexFake) Stats(context.Context, int) (domain.CorpusStats, error) {
	if f.statsErr != nil {
		return domain.CorpusStats{}, f.statsErr
	}
	return f.stats, nil
}

type lexicalIndexFake struct {
	hits        []domain.ChannelHit
	err         error
	searchLimit int
	indexErr    error
	indexed     []domain.Chunk
}

func (f *lexicalIndexFake) IndexChunks(_ context.Context, chunks []domain.Chunk) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, chunks...)
	return nil
}

func (f *lexicalIndexFake) Search(_ context.Context, _ string, limit int, _ domain.SearchFilter) ([]domain.ChannelHit, error) {
	f.searchLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestRetrieveUsesSectionMatch(t *testing.T) {
	dense := &denseIndexFake{sectionChunks: []domain.Chunk{
		{Filename: "aapl.pdf", Section: "ITEM 1A.", ChunkIdx: 0, Text: "supply"},
		{Filename: "aapl.pdf", Section: "ITEM 1A.", ChunkIdx: 1, Text: "demand"},
	}}
	embedder := &embedderFake{}
	r := NewHybridRetriever(embedder, dense, &lexicalIndexFake{}, 0.7, nil)

	out, err := r.Retrieve(context.Background(), "Summarize item 1a for me", 5, domain.SearchFilter{Filename: "aapl.pdf"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !out.SectionMatch {
		t.Fatalf("expected section match")
	}
	if len(dense.sectionCalls) != 1 || dense.sectionCalls[0] != "ITEM 1A." {
		t.Fatalf("unexpected section fetches: %v", dense.sectionCalls)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	for _, r := range out.Results {
		if r.SearchType != domain.SearchTypeSectionMatch || r.Score != 1.0 || r.DenseScoreNorm != 1.0 || r.SparseScoreNorm != 1.0 {
			t.Fatalf("unexpected section result: %+v", r)
		}
	}
	if len(embedder.queries) != 0 {
		t.Fatalf("section match must not embed the query")
	}
}

func TestRetrieveFallsBackWhenSectionEmpty(t *testing.T) {
	chunk := &domain.Chunk{Filename: "aapl.pdf", Section: "ITEM 7.", ChunkIdx: 0}
	dense := &denseIndexFake{hits: []domain.ChannelHit{{Chunk: chunk, Score: 0.9}}}
	r := NewHybridRetriever(&embedderFake{}, dense, &lexicalIndexFake{}, 0.7, nil)

	out, err := r.Retrieve(context.Background(), "What is in Item 9?", 3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.SectionMatch {
		t.Fatalf("expected hybrid fallback")
	}
	if len(out.Results) != 1 || out.Results[0].SearchType != domain.SearchTypeHybrid {
		t.Fatalf("unexpected results: %+v", out.Results)
	}
}

func TestRetrieveFallsBackWhenSectionFetchFails(t *testing.T) {
	chunk := &domain.Chunk{Filename: "aapl.pdf", Section: "ITEM 7.", ChunkIdx: 0}
	dense := &denseIndexFake{
		hits:       []domain.ChannelHit{{Chunk: chunk, Score: 0.9}},
		sectionErr: errors.New("scroll failed"),
	}
	r := NewHybridRetriever(&embedderFake{}, dense, &lexicalIndexFake{}, 0.7, nil)

	out, err := r.Retrieve(context.Background(), "item 7 liquidity", 3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.SectionMatch || len(out.Results) != 1 {
		t.Fatalf("expected hybrid fallback, got %+v", out)
	}
}

func TestRetrieveOverfetchesAndTrims(t *testing.T) {
	hits := make([]domain.ChannelHit, 0, 6)
	for i := 0; i < 6; i++ {
		hits = append(hits, domain.ChannelHit{
			Chunk: &domain.Chunk{Filename: "aapl.pdf", Section: "ITEM 7.", ChunkIdx: i},
			Score: float64(6 - i),
		})
	}
	dense := &denseIndexFake{hits: hits}
	lexical := &lexicalIndexFake{}
	r := NewHybridRetriever(&embedderFake{}, dense, lexical, 0.7, nil)

	out, err := r.Retrieve(context.Background(), "revenue growth drivers", 3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if dense.searchLimit != 6 || lexical.searchLimit != 6 {
		t.Fatalf("expected both channels to fetch 2x top_k, got dense=%d lexical=%d", dense.searchLimit, lexical.searchLimit)
	}
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}
	if out.Results[0].Chunk.ChunkIdx != 0 {
		t.Fatalf("expected best dense hit first, got %+v", out.Results[0].Chunk)
	}
}

func TestRetrieveBoostsBeforeTrimming(t *testing.T) {
	titles := []string{"Results of Operations", "Liquidity", "Segment Information", "Tax Credits"}
	hits := make([]domain.ChannelHit, 0, len(titles))
	for i, title := range titles {
		hits = append(hits, domain.ChannelHit{
			Chunk: &domain.Chunk{Filename: "tsla.pdf", Section: "ITEM 7.", ChunkIdx: i, SubsectionTitle: title},
			Score: 1.0 - 0.1*float64(i),
		})
	}
	r := NewHybridRetriever(&embedderFake{}, &denseIndexFake{hits: hits}, &lexicalIndexFake{}, 0.7, nil)

	out, err := r.Retrieve(context.Background(), "Which tax credits did the company receive?", 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	top := out.Results[0]
	if top.Chunk.SubsectionTitle != "Tax Credits" {
		t.Fatalf("expected boosted subsection promoted from rank 4, got %+v", top.Chunk)
	}
	if top.Boost == nil || !almostEqual(top.Boost.OriginalScore, 0.49) || top.Score <= top.Boost.OriginalScore {
		t.Fatalf("expected boost trace over pre-boost score 0.49, got %+v (score %v)", top.Boost, top.Score)
	}
	if out.Results[1].Chunk.ChunkIdx != 0 {
		t.Fatalf("expected best unboosted hit second, got %+v", out.Results[1].Chunk)
	}
}

func TestRetrieveToleratesChannelFailure(t *testing.T) {
	chunk := &domain.Chunk{Filename: "aapl.pdf", Section: "ITEM 7.", ChunkIdx: 0}
	dense := &denseIndexFake{hits: []domain.ChannelHit{{Chunk: chunk, Score: 0.42}}}
	lexical := &lexicalIndexFake{err: errors.New("lexical backend unavailable")}
	r := NewHybridRetriever(&embedderFake{}, dense, lexical, 0.7, nil)

	out, err := r.Retrieve(context.Background(), "operating margin", 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("expected dense-only results, got %d", len(out.Results))
	}
	if !almostEqual(out.Results[0].Score, 0.7) {
		t.Fatalf("expected alpha * 1.0, got %v", out.Results[0].Score)
	}
}

func TestRetrieveBothChannelsFailingYieldsEmpty(t *testing.T) {
	r := NewHybridRetriever(
		&embedderFake{queryErr: errors.New("ollama down")},
		&denseIndexFake{},
		&lexicalIndexFake{err: errors.New("down")},
		0.7,
		nil,
	)

	out, err := r.Retrieve(context.Background(), "operating margin", 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(out.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(out.Results))
	}
}

func TestRetrieveRejectsInvalidInput(t *testing.T) {
	r := NewHybridRetriever(&embedderFake{}, &denseIndexFake{}, &lexicalIndexFake{}, 0.7, nil)

	if _, err := r.Retrieve(context.Background(), "  ", 5, domain.SearchFilter{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty query, got %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "revenue", 0, domain.SearchFilter{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for top_k=0, got %v", err)
	}
}
