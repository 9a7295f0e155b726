package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// GetByID returns the registry record of an uploaded filing.
func (uc *IngestDocumentUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get filing: %w", err)
	}
	return doc, nil
}

// Upload stores the raw filing, registers it and queues it for indexing. A
// filing whose event cannot be published is marked failed rather than left
// waiting in "uploaded".
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if err := validateFilingName(filename); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload filing", err)
	}
	content := bufio.NewReader(body)
	if _, err := content.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload filing", errors.New("filing is empty"))
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		MimeType:  mimeType,
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.StoragePath = doc.ID + "_" + sanitizeFilename(filename)

	if err := uc.storage.Save(ctx, doc.StoragePath, content); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("register filing: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		publishErr := fmt.Errorf("publish ingestion event: %w", err)
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, publishErr.Error()); markErr != nil {
			return nil, errors.Join(publishErr, fmt.Errorf("mark filing failed: %w", markErr))
		}
		return nil, publishErr
	}

	return doc, nil
}

var supportedFilingExtensions = map[string]struct{}{
	".pdf": {}, ".txt": {}, ".jsonl": {}, ".xlsx": {},
}

func validateFilingName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := supportedFilingExtensions[ext]; !ok {
		return fmt.Errorf("unsupported file type %q", ext)
	}
	return nil
}

// sanitizeFilename keeps storage keys to ASCII letters, digits, dot, dash and underscore.
func sanitizeFilename(name string) string {
	base := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_') {
			return r
		}
		return '_'
	}, filepath.Base(name))
	if strings.Trim(base, "._") == "" {
		return "filing.bin"
	}
	return base
}
