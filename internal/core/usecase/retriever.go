package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const channelOverfetch = 2

// HybridRetriever ranks chunks for a query using an exact section lookup when
// the query names an item, or dense + lexical fusion otherwise.
type HybridRetriever struct {
	embedder ports.Embedder
	dense    ports.DenseIndex
	lexical  ports.LexicalIndex
	alpha    float64
	logger   *slog.Logger
}

func NewHybridRetriever(
	embedder ports.Embedder,
	dense ports.DenseIndex,
	lexical ports.LexicalIndex,
	alpha float64,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		embedder: embedder,
		dense:    dense,
		lexical:  lexical,
		alpha:    clampAlpha(alpha),
		logger:   logger,
	}
}

type RetrievalOutcome struct {
	Results      []domain.ScoredResult
	SectionMatch bool
	Boosts       BoostAnalysis
}

func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter) (RetrievalOutcome, error) {
	if strings.TrimSpace(query) == "" {
		return RetrievalOutcome{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is empty"))
	}
	if topK <= 0 {
		return RetrievalOutcome{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("top_k must be positive, got %d", topK))
	}

	analysis := analyzeSubsectionBoosts(query)
	if analysis.HasBoosts {
		categories := make([]string, 0, len(analysis.Boosts))
		for _, b := range analysis.Boosts {
			categories = append(categories, b.Category)
		}
		r.logger.Debug("subsection_boosts_active", "categories", categories, "max_boost", analysis.MaxBoost)
	}

	if section, ok := detectSectionReference(query); ok {
		results, err := r.sectionMatch(ctx, section, topK, filter)
		switch {
		case err != nil:
			r.logger.Warn("section_match_failed", "section", section, "error", err)
		case len(results) == 0:
			r.logger.Info("section_match_empty", "section", section, "filename", filter.Filename)
		default:
			return RetrievalOutcome{
				Results:      trimResults(applySubsectionBoosts(results, analysis), topK),
				SectionMatch: true,
				Boosts:       analysis,
			}, nil
		}
	}

	dense, sparse := r.searchChannels(ctx, query, topK*channelOverfetch, filter)
	ranked := fuseWeighted(dense, sparse, r.alpha)
	ranked = applySubsectionBoosts(ranked, analysis)

	return RetrievalOutcome{
		Results: trimResults(ranked, topK),
		Boosts:  analysis,
	}, nil
}

func (r *HybridRetriever) sectionMatch(ctx context.Context, section string, topK int, filter domain.SearchFilter) ([]domain.ScoredResult, error) {
	chunks, err := r.dense.FetchBySection(ctx, section, topK, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScoredResult, 0, len(chunks))
	for i := range chunks {
		out = append(out, domain.ScoredResult{
			Chunk:           &chunks[i],
			DenseScore:      1.0,
			SparseScore:     1.0,
			DenseScoreNorm:  1.0,
			SparseScoreNorm: 1.0,
			Score:           1.0,
			SearchType:      domain.SearchTypeSectionMatch,
		})
	}
	return out, nil
}

// searchChannels runs both channels concurrently. A failing channel contributes
// no hits instead of failing the query.
func (r *HybridRetriever) searchChannels(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.ChannelHit, []domain.ChannelHit) {
	var (
		g      errgroup.Group
		dense  []domain.ChannelHit
		sparse []domain.ChannelHit
	)

	g.Go(func() error {
		hits, err := r.searchDense(ctx, query, limit, filter)
		if err != nil {
			r.logger.Warn("retrieval_channel_failed", "channel", domain.SearchTypeDense, "error", err)
			return nil
		}
		dense = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.lexical.Search(ctx, query, limit, filter)
		if err != nil {
			r.logger.Warn("retrieval_channel_failed", "channel", domain.SearchTypeSparse, "error", err)
			return nil
		}
		sparse = hits
		return nil
	})
	_ = g.Wait()

	return dense, sparse
}

func (r *HybridRetriever) searchDense(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.ChannelHit, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.dense.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return hits, nil
}
