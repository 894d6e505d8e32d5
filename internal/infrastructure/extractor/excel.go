package extractor

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func extractXLSX(path string) (domain.Extraction, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	sheets := file.GetSheetList()
	for _, sheet := range sheets {
		rows, err := file.GetRows(sheet)
		if err != nil {
			continue
		}
		b.WriteString(sheet)
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract xlsx", fmt.Errorf("workbook has no cell data"))
	}
	return domain.Extraction{
		Text:     text,
		FileType: "spreadsheet",
		Meta:     map[string]any{"sheets": len(sheets)},
	}, nil
}
