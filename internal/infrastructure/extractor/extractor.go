package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

var textExtensions = map[string]string{
	".txt":  "text",
	".md":   "markdown",
	".html": "html",
	".htm":  "html",
	".json": "text",
	".yaml": "text",
	".yml":  "text",
	".csv":  "text",
	".log":  "text",
	".py":   "code",
	".js":   "code",
	".ts":   "code",
	".go":   "code",
	".sql":  "code",
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Extractor dispatches format-specific extraction by file extension.
// Unsupported formats return ErrInvalidInput; the caller records the
// document as extract_failed.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(ext string) bool {
	ext = strings.ToLower(ext)
	if _, ok := textExtensions[ext]; ok {
		return true
	}
	if imageExtensions[ext] {
		return true
	}
	return ext == ".pdf" || ext == ".xlsx"
}

func (e *Extractor) Extract(ctx context.Context, path, ext string) (domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}
	ext = strings.ToLower(ext)

	switch {
	case textExtensions[ext] != "":
		return e.extractText(path, textExtensions[ext])
	case ext == ".pdf":
		return extractPDF(path)
	case ext == ".xlsx":
		return extractXLSX(path)
	case imageExtensions[ext]:
		// Image description is delegated to a vision model by the caller;
		// extraction alone yields no text.
		return domain.Extraction{FileType: "image"}, nil
	default:
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unsupported extension %q", ext))
	}
}

func (e *Extractor) extractText(path, fileType string) (domain.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read file: %w", err)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return domain.Extraction{
		Text:     text,
		FileType: fileType,
		Meta:     map[string]any{"bytes": len(data)},
	}, nil
}
