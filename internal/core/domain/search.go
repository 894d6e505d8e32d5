package domain

import "time"

// SearchMode selects the retrieval strategy.
type SearchMode string

const (
	ModeKeyword  SearchMode = "keyword"
	ModeVector   SearchMode = "vector"
	ModeHybrid   SearchMode = "hybrid"
	ModeTwoStage SearchMode = "two_stage"
)

// SearchFilter narrows retrieval by chunk attributes. Zero values mean
// no restriction.
type SearchFilter struct {
	Tags      []string  `json:"tags,omitempty"`
	Author    string    `json:"author,omitempty"`
	Extension string    `json:"extension,omitempty"`
	Category  string    `json:"category,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
}

// RetrievedChunk is one scored search hit.
type RetrievedChunk struct {
	ChunkID      int64    `json:"chunk_id"`
	DocumentID   int64    `json:"document_id"`
	Ordinal      int      `json:"ordinal"`
	Title        string   `json:"title,omitempty"`
	Author       string   `json:"author,omitempty"`
	Category     string   `json:"category,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Text         string   `json:"text"`
	Path         string   `json:"path,omitempty"`
	Score        float64  `json:"score"`
	VectorScore  float64  `json:"vector_score,omitempty"`
	KeywordScore float64  `json:"keyword_score,omitempty"`
}

// DocumentHit is one scored document candidate from stage 1 of two-stage
// retrieval.
type DocumentHit struct {
	DocumentID int64   `json:"document_id"`
	Path       string  `json:"path"`
	Summary    string  `json:"summary,omitempty"`
	Score      float64 `json:"score"`
}

// SearchResult carries the final ranked chunks plus how they were found.
type SearchResult struct {
	Mode      SearchMode       `json:"mode"`
	Degraded  bool             `json:"degraded,omitempty"`
	Chunks    []RetrievedChunk `json:"chunks"`
	Documents []DocumentHit    `json:"documents,omitempty"`
}
