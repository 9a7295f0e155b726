package filing

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

const financialStatementsSection = "ITEM 8."

// workbookSections maps an XBRL-style financial report workbook onto ITEM 8.
// Each sheet becomes a subsection; the sheet position stands in for the page.
func workbookSections(data []byte) ([]domain.Section, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read workbook", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	var (
		subsections []domain.Subsection
		body        strings.Builder
	)
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		content := sheetText(rows)
		if content == "" {
			continue
		}
		subsections = append(subsections, domain.Subsection{Title: sheet, Content: content})
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		body.WriteString(sheet)
		body.WriteByte('\n')
		body.WriteString(content)
	}
	if len(subsections) == 0 {
		return nil, nil
	}

	text := body.String()
	return []domain.Section{{
		Section:         financialStatementsSection,
		Text:            text,
		PageRange:       [2]int{1, len(sheets)},
		CrossReferences: crossReferences(financialStatementsSection, text),
		Subsections:     subsections,
	}}, nil
}

func sheetText(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			if v := strings.TrimSpace(cell); v != "" {
				cells = append(cells, v)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return strings.Join(lines, "\n")
}
