package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

// DocumentRepository persists and reads filing state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkIndexed(ctx context.Context, id string, sectionCount, chunkCount int) error
}

// ObjectStorage stores source filings.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes filing upload events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// SectionLoader turns a stored filing into "ITEM" sections.
type SectionLoader interface {
	LoadSections(ctx context.Context, doc *domain.Document) ([]domain.Section, error)
}

// Chunker splits sections into indexable chunks.
type Chunker interface {
	ChunkSections(filename string, sections []domain.Section) []domain.Chunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DenseIndex is the vector-similarity store.
type DenseIndex interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.ChannelHit, error)
	// FetchBySection returns chunks whose section equals section exactly.
	FetchBySection(ctx context.Context, section string, limit int, filter domain.SearchFilter) ([]domain.Chunk, error)
	Stats(ctx context.Context, maxDocuments int) (domain.CorpusStats, error)
}

// LexicalIndex is the keyword relevance store.
type LexicalIndex interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.ChannelHit, error)
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, results []domain.ScoredResult, recent []domain.ConversationTurn) (string, error)
}

type TokenCounter interface {
	CountTokens(text string) int
}

// SessionStore keeps the raw turn list and the rolling summary of each session.
type SessionStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn, ttl time.Duration) error
	// RecentTurns returns the last limit turns oldest first; limit <= 0 returns all.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
	ReplaceTurns(ctx context.Context, sessionID string, turns []domain.ConversationTurn, ttl time.Duration) error
	// Summary returns nil when no summary is stored.
	Summary(ctx context.Context, sessionID string) (*domain.ConversationSummary, error)
	SaveSummary(ctx context.Context, sessionID string, summary domain.ConversationSummary, ttl time.Duration) error
	Clear(ctx context.Context, sessionID string) error
}

// SessionLocker serializes summarization per session when enabled.
type SessionLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}
