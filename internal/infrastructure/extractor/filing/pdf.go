package filing

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

func pdfPages(data []byte) (pages []domain.Page, err error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read pdf", fmt.Errorf("empty file"))
	}
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.WrapError(domain.ErrInvalidInput, "read pdf", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read pdf", err)
	}

	total := reader.NumPage()
	pages = make([]domain.Page, 0, total)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, perr := page.GetPlainText(fonts)
		if perr != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, perr)
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	return pages, nil
}
