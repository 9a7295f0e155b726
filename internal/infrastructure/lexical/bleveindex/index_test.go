package bleveindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

func seedIndex(t *testing.T, idx *Index) {
	t.Helper()
	chunks := []domain.Chunk{
		{Filename: "aapl.pdf", Section: "ITEM 7.", ChunkIdx: 0, Text: "Gross margin increased to 43 percent driven by services.", SubsectionTitle: "Gross Margin", PageRange: [2]int{30, 31}},
		{Filename: "aapl.pdf", Section: "ITEM 1A.", ChunkIdx: 0, Text: "Supply chain disruptions may affect product availability.", SubsectionTitle: "Risk Factors"},
		{Filename: "msft.pdf", Section: "ITEM 7.", ChunkIdx: 0, Text: "Gross margin grew as cloud revenue expanded.", SubsectionTitle: "Overview"},
	}
	if err := idx.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
}

func TestSearchRanksMatchingChunks(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()
	seedIndex(t, idx)

	hits, err := idx.Search(context.Background(), "gross margin", 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Fatalf("expected positive score, got %v", h.Score)
		}
		if h.Chunk.Section != "ITEM 7." {
			t.Fatalf("unexpected hit %+v", h.Chunk)
		}
	}
	if hits[0].Chunk.Filename != "aapl.pdf" || hits[0].Chunk.PageRange != [2]int{30, 31} {
		t.Fatalf("expected title match ranked first with full payload, got %+v", hits[0].Chunk)
	}
}

func TestSearchFiltersByFilename(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()
	seedIndex(t, idx)

	hits, err := idx.Search(context.Background(), "gross margin", 10, domain.SearchFilter{Filename: "msft.pdf"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Filename != "msft.pdf" {
		t.Fatalf("expected only msft.pdf, got %+v", hits)
	}
}

func TestReindexOverwritesSameChunk(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()
	seedIndex(t, idx)
	seedIndex(t, idx)

	count, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 documents after reindex, got %d", count)
	}
}

func TestOpenPersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.bleve")
	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	seedIndex(t, idx)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	hits, err := reopened.Search(context.Background(), "supply chain", 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Section != "ITEM 1A." {
		t.Fatalf("unexpected hits after reopen %+v", hits)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search(context.Background(), "   ", 5, domain.SearchFilter{})
	if err != nil || hits != nil {
		t.Fatalf("expected nil result, got %v %v", hits, err)
	}
}
