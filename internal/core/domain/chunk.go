package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ChunkStatus tracks chunk-level enrichment progress.
type ChunkStatus string

const (
	ChunkPending ChunkStatus = "pending"
	// ChunkEnriching is transient: set when a worker claims the chunk and
	// replaced by enriched, pending (retry) or error before the batch ends.
	ChunkEnriching ChunkStatus = "enriching"
	ChunkEnriched  ChunkStatus = "enriched"
	ChunkError     ChunkStatus = "error"
)

// MaxEnrichRetries bounds chunk enrichment attempts. A chunk stays pending
// while retry_count is below this and flips to error when it is reached.
const MaxEnrichRetries = 3

// QualityThreshold flags chunks for manual review below this score.
const QualityThreshold = 0.4

// Chunk is one segmented, independently enriched and embedded unit of a
// Document. ContentHash is computed over normalized text and is unique
// across the whole archive.
type Chunk struct {
	ID          int64  `json:"id"`
	DocumentID  int64  `json:"document_id"`
	Ordinal     int    `json:"ordinal"`
	CharStart   int    `json:"char_start"`
	CharEnd     int    `json:"char_end"`
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`

	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Quality  Quality  `json:"quality"`

	Status     ChunkStatus `json:"status"`
	RetryCount int         `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quality holds the enrichment quality rubric output plus residual
// extraction data that has no dedicated column.
type Quality struct {
	Score       float64        `json:"quality_score"`
	NeedsReview bool           `json:"needs_review"`
	CreatedHint string         `json:"created_hint,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// NormalizedHash hashes lower-cased, whitespace-collapsed text. It is the
// archive-wide chunk dedup key.
func NormalizedHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ChunkEnrichment is the chunk-tier LLM extraction result.
type ChunkEnrichment struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	CreatedHint string   `json:"created_hint"`
	Tags        []string `json:"tags"`
	Summary     string   `json:"summary"`
}
