package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

// Priority order: the first keyword found in the previous exchange wins.
var metricKeywords = []string{
	"net income", "total revenue", "revenue", "income", "profit", "loss",
	"earnings", "margin", "assets", "liabilities", "cash flow", "dividend",
	"share price", "eps", "ebitda", "operating income", "gross profit",
}

var (
	anyYearPattern     = regexp.MustCompile(`\d{4}`)
	yearMentionPattern = regexp.MustCompile(`(?:and\s+|for\s+|in\s+|about\s+)?(\d{4})`)
	bareYearPattern    = regexp.MustCompile(`^\d{4}\s*\?*$`)
	leadingYearPattern = regexp.MustCompile(`^(\d{4})`)
)

var comparisonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`compare\s+(?:it|that|this)\s+(?:with|to|against)\s+(.+?)[\?]*$`),
	regexp.MustCompile(`(?:vs|versus)\s+(.+?)[\?]*$`),
	regexp.MustCompile(`and\s+(.+?)[\?]*$`),
}

var topicPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:what about|how about)\s+(.+?)[\?]*$`),
	regexp.MustCompile(`^(.+?)\s*\?*$`),
}

var nounPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:the|what)\s+([a-zA-Z\s]+?)(?:\s+(?:was|is|in|for))`),
	regexp.MustCompile(`([a-zA-Z\s]+?)\s+(?:was|is)\s+\$`),
}

var (
	phraseStopwords = map[string]struct{}{"it": {}, "that": {}, "this": {}, "then": {}, "what": {}}
	topicStopwords  = map[string]struct{}{"what": {}, "the": {}, "it": {}}
)

type rewriteInput struct {
	current      string
	currentLower string
	lastQuery    string
	lastResponse string
}

type rewriteRule struct {
	name    string
	rewrite func(in rewriteInput) (string, bool)
}

var rewriteRules = []rewriteRule{
	{name: "year_mention", rewrite: rewriteYearMention},
	{name: "comparison", rewrite: rewriteComparison},
	{name: "bare_year", rewrite: rewriteBareYear},
	{name: "topic_phrase", rewrite: rewriteTopicPhrase},
}

// RewriteQuery expands current into a standalone question using the most
// recent turn of history. Callers decide whether current is a follow-up.
func RewriteQuery(current string, history []domain.ConversationTurn) string {
	if len(history) == 0 {
		return current
	}
	last := history[len(history)-1]
	in := rewriteInput{
		current:      current,
		currentLower: strings.ToLower(strings.TrimSpace(current)),
		lastQuery:    last.UserQuery,
		lastResponse: last.AIResponse,
	}
	for _, rule := range rewriteRules {
		if out, ok := rule.rewrite(in); ok {
			return out
		}
	}
	return strings.TrimRight(in.lastQuery, "?") + " and " + current
}

// PreviewRewrite applies the same gating as the query path: only follow-ups
// with history are rewritten.
func PreviewRewrite(query string, history []domain.ConversationTurn) domain.RewritePreview {
	followUp := IsFollowUp(query)
	rewritten := query
	if followUp && len(history) > 0 {
		rewritten = RewriteQuery(query, history)
	}
	return domain.RewritePreview{
		OriginalQuery:  query,
		IsFollowUp:     followUp,
		RewrittenQuery: rewritten,
		HistoryUsed:    len(history),
	}
}

func rewriteYearMention(in rewriteInput) (string, bool) {
	m := yearMentionPattern.FindStringSubmatch(in.currentLower)
	if m == nil {
		return "", false
	}
	return substituteYear(in, m[1], " for "), true
}

func rewriteBareYear(in rewriteInput) (string, bool) {
	if !bareYearPattern.MatchString(in.currentLower) {
		return "", false
	}
	m := leadingYearPattern.FindStringSubmatch(in.currentLower)
	return substituteYear(in, m[1], " in "), true
}

func substituteYear(in rewriteInput, year, joiner string) string {
	if topic := extractMainTopic(in.lastQuery, in.lastResponse); topic != "" {
		return "What was the " + topic + " in " + year + "?"
	}
	if previous := anyYearPattern.FindString(in.lastQuery); previous != "" {
		return strings.ReplaceAll(in.lastQuery, previous, year)
	}
	return in.lastQuery + joiner + year
}

func rewriteComparison(in rewriteInput) (string, bool) {
	for _, p := range comparisonPatterns {
		m := p.FindStringSubmatch(in.currentLower)
		if m == nil {
			continue
		}
		target := strings.TrimSpace(m[1])
		topic := extractMainTopic(in.lastQuery, in.lastResponse)
		if topic != "" && target != "" {
			if leadingYearPattern.MatchString(target) {
				return "Compare the " + topic + " between the previous year mentioned and " + target, true
			}
			return "Compare the " + topic + " with " + target, true
		}
		return in.lastQuery + " compared to " + target, true
	}
	return "", false
}

func rewriteTopicPhrase(in rewriteInput) (string, bool) {
	for _, p := range topicPhrasePatterns {
		m := p.FindStringSubmatch(in.currentLower)
		if m == nil {
			continue
		}
		phrase := strings.TrimSpace(m[1])
		if len(phrase) <= 2 {
			continue
		}
		if _, stop := phraseStopwords[phrase]; stop {
			continue
		}
		if year := anyYearPattern.FindString(in.lastQuery); year != "" {
			return "What was the " + phrase + " in " + year + "?", true
		}
		return "What was the " + phrase + "?", true
	}
	return "", false
}

// extractMainTopic finds the financial metric the previous exchange was about.
func extractMainTopic(query, response string) string {
	text := strings.ToLower(query + " " + response)
	for _, kw := range metricKeywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}

	queryLower := strings.ToLower(query)
	for _, p := range nounPhrasePatterns {
		m := p.FindStringSubmatch(queryLower)
		if m == nil {
			continue
		}
		topic := strings.TrimSpace(m[1])
		if len(topic) <= 2 {
			continue
		}
		if _, stop := topicStopwords[topic]; stop {
			continue
		}
		return topic
	}
	return ""
}
