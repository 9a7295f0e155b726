package usecase

import (
	"regexp"
	"strings"
)

type followUpRule struct {
	name    string
	pattern *regexp.Regexp
}

// Evaluated in order against the lowercased, trimmed query.
var followUpRules = []followUpRule{
	{name: "leading_connector", pattern: regexp.MustCompile(`^(and|also|what about|how about)\s`)},
	{name: "period_year", pattern: regexp.MustCompile(`^(for|in|about)\s+\d{4}`)},
	{name: "bare_year", pattern: regexp.MustCompile(`^\d{4}\s*\?*$`)},
	{name: "relative_period", pattern: regexp.MustCompile(`^(the\s+)?(previous|next|last|this)\s+(year|quarter|period)`)},
	{name: "pronoun_reference", pattern: regexp.MustCompile(`^(what|how)\s+(about|was)\s+(that|it|this)`)},
	{name: "single_token", pattern: regexp.MustCompile(`^\w+\s*\?*$`)},
}

const shortQuestionMaxWords = 3

// IsFollowUp reports whether query only makes sense with the previous turn.
// It favours precision: a complete question is never treated as a follow-up.
func IsFollowUp(query string) bool {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return false
	}
	for _, rule := range followUpRules {
		if rule.pattern.MatchString(normalized) {
			return true
		}
	}
	return len(strings.Fields(query)) <= shortQuestionMaxWords && strings.Contains(query, "?")
}
