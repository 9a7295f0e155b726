package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

var summaryFinancialTerms = map[string]struct{}{
	"revenue": {}, "income": {}, "profit": {}, "loss": {}, "earnings": {}, "dividend": {}, "share": {},
	"assets": {}, "liabilities": {}, "cash": {}, "debt": {}, "equity": {}, "margin": {}, "expenses": {},
}

var (
	filingYearPattern    = regexp.MustCompile(`\b(20\d{2})\b`)
	summaryQuestionWords = map[string]struct{}{"what": {}, "where": {}, "when": {}, "which": {}}
)

const maxSummaryKeyTopics = 5

func buildSummaryPrompt(turns []domain.ConversationTurn, existing *domain.ConversationSummary) string {
	var conversation strings.Builder
	if existing != nil {
		conversation.WriteString("Previous summary: " + existing.SummaryText + "\n\n")
	}
	conversation.WriteString("Recent conversation:\n")
	for _, turn := range turns {
		conversation.WriteString("User: " + turn.UserQuery + "\n")
		conversation.WriteString("AI: " + turn.AIResponse + "\n\n")
	}

	return `Please create a concise summary of this conversation that captures the key topics, questions asked, and important information discussed. Focus on:

1. Main topics and themes discussed
2. Key financial data or metrics mentioned
3. Important questions and their answers
4. Any follow-up patterns or user interests

Keep the summary under 200 words and maintain the essential context that would be useful for understanding future questions.

Conversation to summarize:
` + conversation.String() + `
Summary:`
}

// summarizeWithModel asks the completer for a summary; an empty reply counts as failure.
func summarizeWithModel(ctx context.Context, completer ports.Completer, turns []domain.ConversationTurn, existing *domain.ConversationSummary) (string, error) {
	text, err := completer.Complete(ctx, buildSummaryPrompt(turns, existing))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty summary from model")
	}
	return text, nil
}

// ruleBasedSummary is the deterministic fallback used when no model summary is available.
func ruleBasedSummary(turns []domain.ConversationTurn, existing *domain.ConversationSummary) string {
	parts := make([]string, 0, 5)
	if existing != nil {
		parts = append(parts, "Previous context: "+existing.SummaryText)
	}

	var (
		topics     []string
		seenTopics = map[string]struct{}{}
		financial  = map[string]struct{}{}
		years      = map[string]struct{}{}
	)
	for _, turn := range turns {
		for _, word := range strings.Fields(strings.ToLower(turn.UserQuery)) {
			if len(word) > 3 {
				if _, ok := seenTopics[word]; !ok {
					seenTopics[word] = struct{}{}
					topics = append(topics, word)
				}
			}
			if _, ok := summaryFinancialTerms[word]; ok {
				financial[word] = struct{}{}
			}
		}
		for _, year := range filingYearPattern.FindAllString(turn.UserQuery+" "+turn.AIResponse, -1) {
			years[year] = struct{}{}
		}
	}

	if len(financial) > 0 {
		parts = append(parts, "Financial topics discussed: "+strings.Join(sortedKeys(financial), ", "))
	}
	if len(years) > 0 {
		parts = append(parts, "Years referenced: "+strings.Join(sortedKeys(years), ", "))
	}

	relevant := make([]string, 0, maxSummaryKeyTopics)
	for _, topic := range topics {
		if len(relevant) == maxSummaryKeyTopics {
			break
		}
		if len(topic) <= 4 {
			continue
		}
		if _, skip := summaryQuestionWords[topic]; skip {
			continue
		}
		relevant = append(relevant, topic)
	}
	if len(relevant) > 0 {
		parts = append(parts, "Key topics: "+strings.Join(relevant, ", "))
	}

	parts = append(parts, fmt.Sprintf("Covered %d conversation turns", len(turns)))
	return strings.Join(parts, ". ") + "."
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
