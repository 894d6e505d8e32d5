package domain

import "time"

// DocumentStatus reflects the outcome of ingestion/extraction.
type DocumentStatus string

const (
	StatusOK            DocumentStatus = "ok"
	StatusExtractFailed DocumentStatus = "extract_failed"
	StatusSkipped       DocumentStatus = "skipped"
)

// DocStatus tracks document-level enrichment and embedding progress.
type DocStatus string

const (
	DocPending DocStatus = "pending"
	// DocEnriching and DocEmbedding are transient claim markers held only
	// while a worker owns the row.
	DocEnriching  DocStatus = "enriching"
	DocEnriched   DocStatus = "enriched"
	DocEmbedding  DocStatus = "embedding"
	DocEmbedded   DocStatus = "embedded"
	DocError      DocStatus = "error"
	DocEmbedError DocStatus = "embed_error"
)

// Document is one ingested source file with its extracted raw text.
// Identity is the content hash: two paths with identical bytes collapse
// into one row, and the last ingested path wins.
type Document struct {
	ID        int64          `json:"id"`
	Path      string         `json:"path"`
	Filename  string         `json:"filename"`
	Extension string         `json:"extension"`
	SizeBytes int64          `json:"size_bytes"`
	MTime     time.Time      `json:"mtime"`
	SHA256    string         `json:"sha256"`
	RawText   string         `json:"-"`
	Status    DocumentStatus `json:"status"`

	DocSummary string         `json:"doc_summary,omitempty"`
	DocStatus  DocStatus      `json:"doc_status"`
	Meta       map[string]any `json:"meta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocEnrichment is the document-tier LLM extraction result.
type DocEnrichment struct {
	Title          string   `json:"doc_title"`
	Summary        string   `json:"doc_summary"`
	Themes         []string `json:"doc_themes"`
	Type           string   `json:"doc_type"`
	ContentWarning string   `json:"content_warning"`
}

// CombinedSummary renders the enrichment into the searchable summary string
// stored on the document and fed to the doc-level embedder.
func (e DocEnrichment) CombinedSummary(fallbackTitle string) string {
	title := e.Title
	if title == "" {
		title = fallbackTitle
	}
	out := title + ". " + e.Summary
	if len(e.Themes) > 0 {
		out += " Themes: "
		for i, theme := range e.Themes {
			if i > 0 {
				out += ", "
			}
			out += theme
		}
		out += "."
	}
	return out
}

// IngestCounts aggregates the outcome of one ingestion pass.
type IngestCounts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}
