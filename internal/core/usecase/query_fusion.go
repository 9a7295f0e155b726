package usecase

import (
	"sort"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

const defaultHybridAlpha = 0.7

// fuseWeighted merges dense and sparse hits on chunk identity and ranks them by
// alpha*dense_norm + (1-alpha)*sparse_norm. Entries keep first-seen order on ties.
func fuseWeighted(dense, sparse []domain.ChannelHit, alpha float64) []domain.ScoredResult {
	alpha = clampAlpha(alpha)

	denseNorm := normalizeScores(hitScores(dense))
	sparseNorm := normalizeScores(hitScores(sparse))

	index := make(map[domain.ChunkKey]int, len(dense)+len(sparse))
	merged := make([]domain.ScoredResult, 0, len(dense)+len(sparse))

	for i, hit := range dense {
		if hit.Chunk == nil {
			continue
		}
		key := hit.Chunk.Key()
		if pos, ok := index[key]; ok {
			merged[pos].DenseScore = hit.Score
			merged[pos].DenseScoreNorm = denseNorm[i]
			continue
		}
		index[key] = len(merged)
		merged = append(merged, domain.ScoredResult{
			Chunk:          hit.Chunk,
			DenseScore:     hit.Score,
			DenseScoreNorm: denseNorm[i],
			SearchType:     domain.SearchTypeHybrid,
		})
	}

	for i, hit := range sparse {
		if hit.Chunk == nil {
			continue
		}
		key := hit.Chunk.Key()
		if pos, ok := index[key]; ok {
			merged[pos].SparseScore = hit.Score
			merged[pos].SparseScoreNorm = sparseNorm[i]
			continue
		}
		index[key] = len(merged)
		merged = append(merged, domain.ScoredResult{
			Chunk:           hit.Chunk,
			SparseScore:     hit.Score,
			SparseScoreNorm: sparseNorm[i],
			SearchType:      domain.SearchTypeHybrid,
		})
	}

	for i := range merged {
		merged[i].Score = alpha*merged[i].DenseScoreNorm + (1-alpha)*merged[i].SparseScoreNorm
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

func hitScores(hits []domain.ChannelHit) []float64 {
	out := make([]float64, len(hits))
	for i, h := range hits {
		out[i] = h.Score
	}
	return out
}

func clampAlpha(alpha float64) float64 {
	switch {
	case alpha < 0:
		return 0
	case alpha > 1:
		return 1
	default:
		return alpha
	}
}

func trimResults(results []domain.ScoredResult, limit int) []domain.ScoredResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
