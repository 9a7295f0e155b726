package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

const maxCitedReferences = 3

const answerPromptTemplate = `You are an SEC-filing assistant for financial analysts and portfolio managers. Use the context to answer the user question.
If the answer is not contained in the context, say "I don't know".

Cite the numbered context blocks you rely on, including section names, so every statement can be traced.
When citing financial information, include specific metrics and trends where available.

%s
###
Context:
%s

###
Question: %s
Answer (concise, with citations including section names and financial context where relevant):
`

var (
	financialTerms   = []string{"REVENUE", "PROFIT", "LOSS", "RISK", "LIABILITY", "DEBT"}
	operationalTerms = []string{"COMPETITION", "REGULATION", "COMPLIANCE", "OPERATIONS"}
)

func buildAnswerPrompt(question string, results []domain.ScoredResult, recent []domain.ConversationTurn) string {
	return fmt.Sprintf(answerPromptTemplate, buildConversationBlock(recent), buildContextBlock(results), question)
}

func buildContextBlock(results []domain.ScoredResult) string {
	parts := make([]string, 0, len(results))
	for idx, result := range results {
		if result.Chunk == nil {
			continue
		}
		parts = append(parts, citationLabel(idx+1, result.Chunk)+"\n"+result.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

func citationLabel(position int, chunk *domain.Chunk) string {
	section := chunk.Section
	if strings.TrimSpace(section) == "" {
		section = "UNKNOWN"
	}

	label := fmt.Sprintf("[%d] %s (%s, %s)", position, section, materiality(chunk.Section, chunk.Text), pageLabel(chunk.PageRange))

	if len(chunk.CrossReferences) > 0 {
		refs := chunk.CrossReferences
		if len(refs) > maxCitedReferences {
			refs = refs[:maxCitedReferences]
		}
		targets := make([]string, 0, len(refs))
		for _, ref := range refs {
			targets = append(targets, "→ "+ref.TargetSection)
		}
		label += " [Refs: " + strings.Join(targets, ", ") + "]"
	}
	return label
}

func pageLabel(pages [2]int) string {
	start, end := pages[0], pages[1]
	if start <= 0 {
		start = 1
	}
	if end < start {
		end = start
	}
	if start == end {
		return fmt.Sprintf("p.%d", start)
	}
	return fmt.Sprintf("pp.%d-%d", start, end)
}

// materiality tags a chunk by how much weight an analyst would give it.
func materiality(section, text string) string {
	sectionUpper := strings.ToUpper(section)
	textUpper := strings.ToUpper(text)

	if containsAny(textUpper, financialTerms) {
		switch {
		case strings.Contains(sectionUpper, "ITEM 1A"):
			return "HIGH RISK"
		case strings.Contains(sectionUpper, "ITEM 7"), strings.Contains(sectionUpper, "ITEM 8"):
			return "FINANCIAL"
		}
	}
	if containsAny(textUpper, operationalTerms) {
		return "OPERATIONAL"
	}
	return "INFORMATIONAL"
}

func buildConversationBlock(recent []domain.ConversationTurn) string {
	if len(recent) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("###\nRecent Conversation:\n")
	for _, turn := range recent {
		b.WriteString("User: " + turn.UserQuery + "\n")
		b.WriteString("AI: " + turn.AIResponse + "\n")
	}
	return b.String()
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
