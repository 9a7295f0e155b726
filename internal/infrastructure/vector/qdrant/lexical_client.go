package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const lexicalVectorName = "lexical"

var _ ports.LexicalIndex = (*LexicalClient)(nil)

// LexicalClient is a keyword index stored as Qdrant sparse vectors. Scoring is
// BM25-like: saturated term frequency per chunk, IDF applied by Qdrant.
type LexicalClient struct {
	rest       restClient
	collection string

	ensureMu sync.Mutex
	ensured  bool
}

func NewLexicalClient(baseURL, collection string) *LexicalClient {
	return &LexicalClient{
		rest:       newRESTClient(baseURL),
		collection: collection,
	}
}

func (c *LexicalClient) IndexChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	type point struct {
		ID      string                  `json:"id"`
		Vector  map[string]sparseVector `json:"vector"`
		Payload map[string]any          `json:"payload"`
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for _, chunk := range chunks[start:end] {
			vec := encodeSparseDocument(chunk.Text, chunk.SubsectionTitle)
			if len(vec.Indices) == 0 {
				continue
			}
			payload, err := chunkPayload(chunk)
			if err != nil {
				return err
			}
			points = append(points, point{
				ID:      pointID(chunk),
				Vector:  map[string]sparseVector{lexicalVectorName: vec},
				Payload: payload,
			})
		}
		if len(points) == 0 {
			continue
		}

		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.rest.do(ctx, "lexical upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *LexicalClient) Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.ChannelHit, error) {
	vec := encodeSparseQuery(queryText)
	if len(vec.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query":        vec,
		"using":        lexicalVectorName,
		"limit":        limit,
		"with_payload": true,
	}
	if f := matchFilter("filename", filter.Filename); f != nil {
		reqBody["filter"] = f
	}

	var result struct {
		Points []scoredPoint `json:"points"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	if err := c.rest.do(ctx, "lexical query", http.MethodPost, path, reqBody, &result); err != nil {
		return nil, err
	}
	return hitsFromPoints(result.Points), nil
}

func (c *LexicalClient) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{},
		"sparse_vectors": map[string]any{
			lexicalVectorName: map[string]any{"modifier": "idf"},
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.rest.do(ctx, "ensure lexical collection", http.MethodPut, path, reqBody, nil)
	if err != nil && !isStatus(err, http.StatusConflict) {
		return err
	}
	c.ensured = true
	return nil
}
