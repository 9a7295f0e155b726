package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const (
	fieldText     = "text"
	fieldTitle    = "subsection_title"
	fieldFilename = "filename"
	fieldPayload  = "payload"

	titleBoost = 1.5
)

var _ ports.LexicalIndex = (*Index)(nil)

// Index is an embedded BM25 keyword index over filing chunks. It holds a file
// lock on disk, so only one process may open a given path.
type Index struct {
	idx bleve.Index
}

// Open opens the index at path, creating it when missing. An empty path keeps
// the index in memory.
func Open(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		idx, err := bleve.NewMemOnly(newChunkMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory bleve index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, newChunkMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

func newChunkMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Store = false
	text.IncludeTermVectors = false

	title := bleve.NewTextFieldMapping()
	title.Store = false

	filename := bleve.NewTextFieldMapping()
	filename.Analyzer = keyword.Name
	filename.Store = false
	filename.IncludeInAll = false

	payload := bleve.NewTextFieldMapping()
	payload.Index = false
	payload.Store = true
	payload.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldText, text)
	doc.AddFieldMappingsAt(fieldTitle, title)
	doc.AddFieldMappingsAt(fieldFilename, filename)
	doc.AddFieldMappingsAt(fieldPayload, payload)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func documentID(c domain.Chunk) string {
	return fmt.Sprintf("%s|%s|%d", c.Filename, c.Section, c.ChunkIdx)
}

func (i *Index) IndexChunks(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := i.idx.NewBatch()
	for _, c := range chunks {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal chunk %s: %w", documentID(c), err)
		}
		err = batch.Index(documentID(c), map[string]interface{}{
			fieldText:     c.Text,
			fieldTitle:    c.SubsectionTitle,
			fieldFilename: c.Filename,
			fieldPayload:  string(payload),
		})
		if err != nil {
			return fmt.Errorf("batch chunk %s: %w", documentID(c), err)
		}
	}
	if err := i.idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve batch index: %w", err)
	}
	return nil
}

func (i *Index) Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.ChannelHit, error) {
	if strings.TrimSpace(queryText) == "" || limit <= 0 {
		return nil, nil
	}

	textQuery := bleve.NewMatchQuery(queryText)
	textQuery.SetField(fieldText)
	titleQuery := bleve.NewMatchQuery(queryText)
	titleQuery.SetField(fieldTitle)
	titleQuery.SetBoost(titleBoost)

	var q query.Query = bleve.NewDisjunctionQuery(textQuery, titleQuery)
	if filter.Filename != "" {
		fileQuery := bleve.NewTermQuery(filter.Filename)
		fileQuery.SetField(fieldFilename)
		q = bleve.NewConjunctionQuery(q, fileQuery)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldPayload}

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	out := make([]domain.ChannelHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		raw, ok := hit.Fields[fieldPayload].(string)
		if !ok {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		out = append(out, domain.ChannelHit{Chunk: &c, Score: hit.Score})
	}
	return out, nil
}

func (i *Index) DocCount() (uint64, error) {
	return i.idx.DocCount()
}

func (i *Index) Close() error {
	return i.idx.Close()
}
