package ports

import (
	"context"
	"io"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for filing upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for filing metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous filing indexing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// QueryService answers questions over the indexed filings.
type QueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
	Stream(ctx context.Context, req domain.QueryRequest, emit func(chunk string) error) (*domain.QueryResult, error)
	CorpusStats(ctx context.Context) (domain.CorpusStats, error)
}

// ConversationService exposes session memory inspection and maintenance.
type ConversationService interface {
	History(ctx context.Context, sessionID string, limit int) (domain.SessionHistory, error)
	Clear(ctx context.Context, sessionID string) error
	Stats(ctx context.Context, sessionID string) (domain.MemoryStats, error)
	ForceSummarize(ctx context.Context, sessionID string) (domain.SummarizeOutcome, error)
	PreviewRewrite(query string, history []domain.ConversationTurn) domain.RewritePreview
	CountTokens(text string) int
}
