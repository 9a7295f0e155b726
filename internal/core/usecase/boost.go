package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

const (
	maxBoostMultiplier = 2.0
	multiHitFactor     = 1.2
)

type boostCategory struct {
	name     string
	keywords []string
	patterns []*regexp.Regexp
	base     float64
}

func mustPatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}

// Order matters: reasons are reported in table order.
var boostCategories = []boostCategory{
	{
		name:     "programs_incentives",
		keywords: []string{"programs", "incentives", "program", "incentive", "benefits", "grants", "funding"},
		patterns: mustPatterns(`programs?\s+and\s+incentives?`, `incentives?`, `government\s+programs?`, `benefits`),
		base:     1.5,
	},
	{
		name:     "tax_credits",
		keywords: []string{"tax", "credit", "credits", "deduction", "deductions", "tax benefits"},
		patterns: mustPatterns(`tax\s+credits?`, `tax\s+benefits?`, `tax\s+deductions?`),
		base:     1.6,
	},
	{
		name:     "regulations",
		keywords: []string{"regulations", "regulation", "regulatory", "compliance", "rules", "requirements"},
		patterns: mustPatterns(`regulations?`, `regulatory`, `compliance`, `legal\s+requirements`),
		base:     1.4,
	},
	{
		name:     "environmental",
		keywords: []string{"environmental", "environment", "climate", "emissions", "sustainability", "green"},
		patterns: mustPatterns(`environmental`, `climate`, `emissions`, `sustainability`),
		base:     1.3,
	},
	{
		name:     "risk_factors",
		keywords: []string{"risk", "risks", "factors", "challenges", "uncertainties"},
		patterns: mustPatterns(`risk\s+factors`, `risks?`, `uncertainties`),
		base:     1.2,
	},
	{
		name:     "competition",
		keywords: []string{"competition", "competitive", "competitors", "market share", "rivalry"},
		patterns: mustPatterns(`competition`, `competitive`, `competitors`),
		base:     1.2,
	},
}

// ActiveBoost is a category triggered by the query.
type ActiveBoost struct {
	Category       string
	Multiplier     float64
	KeywordMatches int
	PatternMatches int
	patterns       []*regexp.Regexp
}

// Patterns returns the source of the category's title patterns.
func (b ActiveBoost) Patterns() []string {
	out := make([]string, 0, len(b.patterns))
	for _, p := range b.patterns {
		out = append(out, strings.TrimPrefix(p.String(), "(?i)"))
	}
	return out
}

type BoostAnalysis struct {
	Boosts    []ActiveBoost
	HasBoosts bool
	MaxBoost  float64
}

func analyzeSubsectionBoosts(query string) BoostAnalysis {
	lower := strings.ToLower(query)
	analysis := BoostAnalysis{MaxBoost: 1.0}

	for _, cat := range boostCategories {
		keywordHits := 0
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				keywordHits++
			}
		}
		patternHits := 0
		for _, p := range cat.patterns {
			if p.MatchString(lower) {
				patternHits++
			}
		}
		if keywordHits == 0 && patternHits == 0 {
			continue
		}

		multiplier := cat.base
		if keywordHits > 1 || patternHits > 1 {
			multiplier *= multiHitFactor
		}
		if multiplier > maxBoostMultiplier {
			multiplier = maxBoostMultiplier
		}

		analysis.Boosts = append(analysis.Boosts, ActiveBoost{
			Category:       cat.name,
			Multiplier:     multiplier,
			KeywordMatches: keywordHits,
			PatternMatches: patternHits,
			patterns:       cat.patterns,
		})
		if multiplier > analysis.MaxBoost {
			analysis.MaxBoost = multiplier
		}
	}
	analysis.HasBoosts = len(analysis.Boosts) > 0
	return analysis
}

// applySubsectionBoosts multiplies each result by the strongest category whose
// pattern matches its subsection title, then re-sorts. Without active boosts the
// input slice itself is returned.
func applySubsectionBoosts(results []domain.ScoredResult, analysis BoostAnalysis) []domain.ScoredResult {
	if !analysis.HasBoosts {
		return results
	}

	out := make([]domain.ScoredResult, len(results))
	copy(out, results)
	for i := range out {
		original := out[i].Score
		if out[i].Boost != nil {
			original = out[i].Boost.OriginalScore
		}

		title := ""
		if out[i].Chunk != nil {
			title = strings.ToLower(out[i].Chunk.SubsectionTitle)
		}

		multiplier := 1.0
		reasons := []string{}
		for _, boost := range analysis.Boosts {
			for _, p := range boost.patterns {
				if !p.MatchString(title) {
					continue
				}
				if boost.Multiplier > multiplier {
					multiplier = boost.Multiplier
				}
				reasons = append(reasons, boost.Category+": "+strings.TrimPrefix(p.String(), "(?i)"))
				break
			}
		}

		out[i].Boost = &domain.BoostTrace{
			OriginalScore: original,
			Multiplier:    multiplier,
			Reasons:       reasons,
		}
		out[i].Score = original * multiplier
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
