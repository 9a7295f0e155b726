package filing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const maxJSONLLine = 16 << 20

var _ ports.SectionLoader = (*Loader)(nil)

// Loader reads a stored filing and returns its "ITEM" sections.
type Loader struct {
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewLoader(storage ports.ObjectStorage, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{storage: storage, logger: logger}
}

func (l *Loader) LoadSections(ctx context.Context, doc *domain.Document) ([]domain.Section, error) {
	reader, err := l.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source filing: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source filing: %w", err)
	}

	var sections []domain.Section
	switch ext := strings.ToLower(filepath.Ext(doc.Filename)); ext {
	case ".pdf":
		pages, perr := pdfPages(raw)
		if perr != nil {
			return nil, perr
		}
		sections = splitSections(pages)
	case ".txt":
		if !utf8.Valid(raw) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load text filing", fmt.Errorf("not valid utf-8: %s", doc.Filename))
		}
		sections = splitSections([]domain.Page{{Number: 1, Text: string(raw)}})
	case ".jsonl":
		sections, err = jsonlSections(raw)
	case ".xlsx":
		sections, err = workbookSections(raw)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "load filing", fmt.Errorf("unsupported format %q", ext))
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("filing_sections_loaded", "document_id", doc.ID, "filename", doc.Filename, "sections", len(sections))
	return sections, nil
}

type sectionRecord struct {
	Section         string                  `json:"section"`
	Text            string                  `json:"text"`
	PageRange       []int                   `json:"page_range"`
	CrossReferences []domain.CrossReference `json:"cross_references"`
	Subsections     []domain.Subsection     `json:"subsections"`
}

// jsonlSections reads pre-sectioned filings, one {"section","text",...} object per line.
func jsonlSections(raw []byte) ([]domain.Section, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLine)

	var out []domain.Section
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var rec sectionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode sections jsonl", fmt.Errorf("line %d: %w", line, err))
		}
		if strings.TrimSpace(rec.Section) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode sections jsonl", fmt.Errorf("line %d: missing section", line))
		}

		section := domain.Section{
			Section:         canonicalHeading(rec.Section),
			Text:            strings.TrimSpace(rec.Text),
			PageRange:       [2]int{1, 1},
			CrossReferences: rec.CrossReferences,
			Subsections:     rec.Subsections,
		}
		if len(rec.PageRange) == 2 {
			section.PageRange = [2]int{rec.PageRange[0], rec.PageRange[1]}
		}
		if len(section.CrossReferences) == 0 {
			section.CrossReferences = crossReferences(section.Section, section.Text)
		}
		if len(section.Subsections) == 0 {
			section.Subsections = detectSubsections(section.Section, section.Text)
		}
		out = append(out, section)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode sections jsonl", err)
		}
		return nil, fmt.Errorf("scan sections jsonl: %w", err)
	}
	return out, nil
}
