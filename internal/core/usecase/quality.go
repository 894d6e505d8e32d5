package usecase

import (
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

// genericTags carry no retrieval value and do not count toward quality.
var genericTags = map[string]bool{
	"misc": true, "general": true, "other": true,
	"document": true, "text": true, "file": true, "notes": true,
}

// scoreEnrichment grades an extraction on a [0,1] rubric: title presence,
// summary length and lexical overlap with the source text, tag count and
// specificity, author and date presence. Chunks below the threshold get
// flagged for manual review but still proceed through the pipeline.
func scoreEnrichment(e domain.ChunkEnrichment, chunkText string) domain.Quality {
	var score float64

	title := strings.TrimSpace(e.Title)
	switch {
	case len(title) >= 5:
		score += 0.25
	case title != "":
		score += 0.1
	}

	summary := strings.TrimSpace(e.Summary)
	if summary != "" {
		length := float64(len(summary)) / 80
		if length > 1 {
			length = 1
		}
		score += 0.2 * length
		score += 0.15 * lexicalOverlap(summary, chunkText)
	}

	specific := 0
	for _, tag := range e.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if len(tag) >= 3 && !genericTags[tag] {
			specific++
		}
	}
	tagScore := float64(specific) / 3
	if tagScore > 1 {
		tagScore = 1
	}
	score += 0.2 * tagScore

	if strings.TrimSpace(e.Author) != "" {
		score += 0.1
	}
	if strings.TrimSpace(e.CreatedHint) != "" {
		score += 0.1
	}

	return domain.Quality{
		Score:       score,
		NeedsReview: score < domain.QualityThreshold,
		CreatedHint: strings.TrimSpace(e.CreatedHint),
	}
}

// lexicalOverlap reports the fraction of summary words that actually occur
// in the source text. A hallucinated summary scores near zero.
func lexicalOverlap(summary, text string) float64 {
	textLower := strings.ToLower(text)
	words := strings.Fields(strings.ToLower(summary))
	if len(words) == 0 {
		return 0
	}
	hits := 0
	total := 0
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if len(word) < 4 {
			continue
		}
		total++
		if strings.Contains(textLower, word) {
			hits++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}
