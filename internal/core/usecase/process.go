package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const defaultEmbedBatchSize = 32

// ProcessDocumentUseCase turns an uploaded filing into indexed chunks.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	sections  ports.SectionLoader
	chunker   ports.Chunker
	embedder  ports.Embedder
	dense     ports.DenseIndex
	lexical   ports.LexicalIndex
	batchSize int
	logger    *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	sections ports.SectionLoader,
	chunker ports.Chunker,
	embedder ports.Embedder,
	dense ports.DenseIndex,
	lexical ports.LexicalIndex,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		sections:  sections,
		chunker:   chunker,
		embedder:  embedder,
		dense:     dense,
		lexical:   lexical,
		batchSize: defaultEmbedBatchSize,
		logger:    logger,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	sectionCount, chunkCount, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkIndexed(ctx, documentID, sectionCount, chunkCount); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	uc.logger.Info("filing_indexed", "document_id", documentID, "sections", sectionCount, "chunks", chunkCount)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (int, int, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return 0, 0, err
	}

	sections, err := uc.loadSections(ctx, doc)
	if err != nil {
		return 0, 0, err
	}

	chunks, err := uc.chunk(doc, sections)
	if err != nil {
		return 0, 0, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return 0, 0, err
	}

	if err := uc.index(ctx, doc, chunks, vectors); err != nil {
		return 0, 0, err
	}

	return len(sections), len(chunks), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) loadSections(ctx context.Context, doc *domain.Document) ([]domain.Section, error) {
	sections, err := uc.sections.LoadSections(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	if len(sections) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load sections", errors.New("filing has no extractable text"))
	}
	return sections, nil
}

func (uc *ProcessDocumentUseCase) chunk(doc *domain.Document, sections []domain.Section) ([]domain.Chunk, error) {
	chunks := uc.chunker.ChunkSections(doc.Filename, sections)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk filing", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

// index writes the dense store first; the lexical store is best effort.
func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if err := uc.dense.IndexChunks(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks in vector db: %w", err)
	}
	if uc.lexical == nil {
		return nil
	}
	if err := uc.lexical.IndexChunks(ctx, chunks); err != nil {
		uc.logger.Warn("lexical_index_failed", "document_id", doc.ID, "filename", doc.Filename, "error", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
