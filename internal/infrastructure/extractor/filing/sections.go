package filing

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/chunking"
)

const fullTextSection = "FULL_TEXT"

var (
	itemHeadingRe = regexp.MustCompile(`(?i)(ITEM\s+\d+[A-Za-z]?\.)`)
	lineHeadingRe = regexp.MustCompile(`(?im)^[ \t]*(ITEM\s+\d+[A-Za-z]?\.)`)
	crossRefRe    = regexp.MustCompile(`(?i)\b(?:see|refer\s+to)\s+(?:Part\s+[IVX]+,?\s+)?Item\s+(\d+[A-Za-z]?)\b`)
	spaceRe       = regexp.MustCompile(`\s+`)

	minorTitleWords = map[string]struct{}{
		"a": {}, "an": {}, "and": {}, "as": {}, "at": {}, "by": {}, "for": {}, "from": {},
		"in": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "with": {},
	}
)

const (
	maxHeadingRunes = 80
	maxHeadingWords = 10
	crossRefContext = 60
)

// splitSections cuts page texts into "ITEM N." sections. A repeated heading
// (table of contents, then body) keeps its first position and its last body.
func splitSections(pages []domain.Page) []domain.Section {
	if len(pages) == 0 {
		return nil
	}

	var b strings.Builder
	starts := make([]int, len(pages))
	for i, page := range pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		starts[i] = b.Len()
		b.WriteString(page.Text)
	}
	text := b.String()
	pageAt := func(offset int) int {
		idx := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
		if idx < 0 {
			idx = 0
		}
		return pages[idx].Number
	}

	matches := findHeadings(text)
	if len(matches) == 0 {
		body := strings.TrimSpace(text)
		if body == "" {
			return nil
		}
		return []domain.Section{buildSection(fullTextSection, body, [2]int{pages[0].Number, pages[len(pages)-1].Number})}
	}

	order := make([]string, 0, len(matches))
	byTitle := make(map[string]domain.Section, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		title := canonicalHeading(text[m[0]:m[1]])
		body := strings.TrimSpace(text[m[1]:end])
		lastOffset := end - 1
		if lastOffset < m[1] {
			lastOffset = m[1]
		}
		section := buildSection(title, body, [2]int{pageAt(m[0]), pageAt(lastOffset)})
		if _, seen := byTitle[title]; !seen {
			order = append(order, title)
		}
		byTitle[title] = section
	}

	out := make([]domain.Section, 0, len(order))
	for _, title := range order {
		out = append(out, byTitle[title])
	}
	return out
}

// findHeadings prefers headings that open a line so inline "see Item 7." stays
// in the body; text without line breaks falls back to any occurrence.
func findHeadings(text string) [][]int {
	found := lineHeadingRe.FindAllStringSubmatchIndex(text, -1)
	if len(found) == 0 {
		found = itemHeadingRe.FindAllStringSubmatchIndex(text, -1)
	}
	out := make([][]int, 0, len(found))
	for _, m := range found {
		out = append(out, []int{m[2], m[3]})
	}
	return out
}

func buildSection(title, body string, pages [2]int) domain.Section {
	return domain.Section{
		Section:         title,
		Text:            body,
		PageRange:       pages,
		CrossReferences: crossReferences(title, body),
		Subsections:     detectSubsections(title, body),
	}
}

// canonicalHeading turns "Item  1a." into "ITEM 1A.".
func canonicalHeading(raw string) string {
	return strings.ToUpper(spaceRe.ReplaceAllString(strings.TrimSpace(raw), " "))
}

func detectSubsections(section, body string) []domain.Subsection {
	lines := strings.Split(body, "\n")

	var (
		out     []domain.Subsection
		title   string
		content []string
		found   bool
	)
	flush := func() {
		text := strings.TrimSpace(strings.Join(content, "\n"))
		if text != "" {
			t := title
			if t == "" {
				t = chunking.DefaultSubsectionTitle(section)
			}
			out = append(out, domain.Subsection{Title: t, Content: text})
		}
		content = content[:0]
	}

	for _, line := range lines {
		if isSubsectionHeading(line) {
			flush()
			title = strings.TrimSpace(line)
			found = true
			continue
		}
		content = append(content, line)
	}
	flush()

	if !found {
		return nil
	}
	return out
}

// isSubsectionHeading accepts short title-case lines such as "Liquidity and Capital Resources".
func isSubsectionHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len([]rune(trimmed)) > maxHeadingRunes {
		return false
	}
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, ";") {
		return false
	}
	if itemHeadingRe.MatchString(trimmed) {
		return false
	}

	words := strings.Fields(trimmed)
	if len(words) > maxHeadingWords {
		return false
	}

	significant := 0
	for i, word := range words {
		first := []rune(word)[0]
		if !unicode.IsLetter(first) {
			if unicode.IsDigit(first) {
				return false
			}
			continue
		}
		if i > 0 {
			if _, minor := minorTitleWords[strings.ToLower(word)]; minor {
				continue
			}
		}
		if !unicode.IsUpper(first) {
			return false
		}
		significant++
	}
	return significant > 0
}

func crossReferences(section, body string) []domain.CrossReference {
	matches := crossRefRe.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var out []domain.CrossReference
	for _, m := range matches {
		target := "ITEM " + strings.ToUpper(body[m[2]:m[3]]) + "."
		if target == section {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		from := m[0] - crossRefContext
		if from < 0 {
			from = 0
		}
		to := m[1] + crossRefContext
		if to > len(body) {
			to = len(body)
		}
		out = append(out, domain.CrossReference{
			TargetSection: target,
			Context:       strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToValidUTF8(body[from:to], ""), " ")),
		})
	}
	return out
}
