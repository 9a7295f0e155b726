package qdrant

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

// pointID is stable per (filename, section, chunk_idx) so re-indexing a
// filing overwrites its points instead of duplicating them.
func pointID(c domain.Chunk) string {
	key := fmt.Sprintf("%s|%s|%d", c.Filename, c.Section, c.ChunkIdx)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func chunkPayload(c domain.Chunk) (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("build chunk payload: %w", err)
	}
	return payload, nil
}

func chunkFromPayload(payload map[string]any) (*domain.Chunk, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal point payload: %w", err)
	}
	var c domain.Chunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptRecord, "decode point payload", err)
	}
	return &c, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// matchFilter builds a Qdrant "must" filter from exact payload matches; empty
// values are skipped and nil is returned when nothing is left.
func matchFilter(pairs ...string) map[string]any {
	must := make([]map[string]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		must = append(must, map[string]any{
			"key":   pairs[i],
			"match": map[string]any{"value": pairs[i+1]},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func hitsFromPoints(points []scoredPoint) []domain.ChannelHit {
	out := make([]domain.ChannelHit, 0, len(points))
	for _, p := range points {
		chunk, err := chunkFromPayload(p.Payload)
		if err != nil {
			continue
		}
		out = append(out, domain.ChannelHit{Chunk: chunk, Score: p.Score})
	}
	return out
}
