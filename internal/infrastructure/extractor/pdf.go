package extractor

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func extractPDF(path string) (domain.Extraction, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page should not lose the rest of the document.
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf", fmt.Errorf("no extractable text in %d pages", pages))
	}
	return domain.Extraction{
		Text:     text,
		FileType: "pdf",
		Meta:     map[string]any{"pages": pages},
	}, nil
}
