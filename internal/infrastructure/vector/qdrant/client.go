package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const (
	upsertBatchSize       = 128
	statsScrollPage       = 256
	defaultStatsDocuments = 100
)

var _ ports.DenseIndex = (*Client)(nil)

// Client is the dense vector index over filing chunks.
type Client struct {
	rest       restClient
	collection string

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		rest:       newRESTClient(baseURL),
		collection: collection,
	}
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			payload, err := chunkPayload(chunks[i])
			if err != nil {
				return err
			}
			points = append(points, point{ID: pointID(chunks[i]), Vector: vectors[i], Payload: payload})
		}

		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.rest.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ChannelHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := matchFilter("filename", filter.Filename); f != nil {
		reqBody["filter"] = f
	}

	var points []scoredPoint
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.rest.do(ctx, "search", http.MethodPost, path, reqBody, &points); err != nil {
		return nil, err
	}
	return hitsFromPoints(points), nil
}

type scrollPage struct {
	Points []struct {
		ID      any            `json:"id"`
		Payload map[string]any `json:"payload"`
	} `json:"points"`
	NextPageOffset any `json:"next_page_offset"`
}

func (c *Client) scroll(ctx context.Context, body map[string]any) (scrollPage, error) {
	var page scrollPage
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	err := c.rest.do(ctx, "scroll", http.MethodPost, path, body, &page)
	return page, err
}

// FetchBySection returns up to limit chunks stored under exactly section.
func (c *Client) FetchBySection(ctx context.Context, section string, limit int, filter domain.SearchFilter) ([]domain.Chunk, error) {
	page, err := c.scroll(ctx, map[string]any{
		"filter":       matchFilter("section", section, "filename", filter.Filename),
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(page.Points))
	for _, p := range page.Points {
		chunk, err := chunkFromPayload(p.Payload)
		if err != nil {
			continue
		}
		out = append(out, *chunk)
	}
	return out, nil
}

// Stats counts indexed points and lists up to maxDocuments distinct filenames.
// A collection that does not exist yet reports an empty corpus.
func (c *Client) Stats(ctx context.Context, maxDocuments int) (domain.CorpusStats, error) {
	if maxDocuments <= 0 {
		maxDocuments = defaultStatsDocuments
	}
	var info struct {
		PointsCount int `json:"points_count"`
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	if err := c.rest.do(ctx, "collection info", http.MethodGet, path, nil, &info); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.CorpusStats{Documents: []string{}}, nil
		}
		return domain.CorpusStats{}, err
	}

	filenames := make(map[string]struct{})
	var offset any
	for {
		body := map[string]any{
			"limit":        statsScrollPage,
			"with_payload": []string{"filename"},
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}
		page, err := c.scroll(ctx, body)
		if err != nil {
			return domain.CorpusStats{}, err
		}
		for _, p := range page.Points {
			if name := getStringPayload(p.Payload, "filename"); name != "" {
				filenames[name] = struct{}{}
			}
			if len(filenames) >= maxDocuments {
				break
			}
		}
		if page.NextPageOffset == nil || len(filenames) >= maxDocuments {
			break
		}
		offset = page.NextPageOffset
	}

	docs := make([]string, 0, len(filenames))
	for name := range filenames {
		docs = append(docs, name)
	}
	sort.Strings(docs)

	return domain.CorpusStats{
		TotalChunks:     info.PointsCount,
		UniqueDocuments: len(docs),
		Documents:       docs,
	}, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.rest.do(ctx, "ensure collection", http.MethodPut, path, reqBody, nil)
	// 409 if the collection already exists (depends on version/config).
	if err != nil && !isStatus(err, http.StatusConflict) {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}
