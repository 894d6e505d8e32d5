package usecase

import (
	"testing"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func TestScoreEnrichmentFullExtraction(t *testing.T) {
	text := "Planted the tomato seedlings today behind the old greenhouse. The soil was still cold."
	e := domain.ChunkEnrichment{
		Title:       "Tomato Planting",
		Author:      "Kim",
		CreatedHint: "spring 1998",
		Tags:        []string{"garden", "tomatoes", "greenhouse"},
		Summary:     "Planted tomato seedlings behind the greenhouse in cold soil.",
	}

	q := scoreEnrichment(e, text)
	if q.Score < 0.8 {
		t.Fatalf("expected high score for full extraction, got %v", q.Score)
	}
	if q.NeedsReview {
		t.Fatalf("full extraction should not need review")
	}
	if q.CreatedHint != "spring 1998" {
		t.Fatalf("expected created hint carried through, got %q", q.CreatedHint)
	}
}

func TestScoreEnrichmentEmptyNeedsReview(t *testing.T) {
	q := scoreEnrichment(domain.ChunkEnrichment{}, "some text")
	if q.Score != 0 {
		t.Fatalf("expected zero score, got %v", q.Score)
	}
	if !q.NeedsReview {
		t.Fatalf("empty extraction must need review")
	}
}

func TestScoreEnrichmentGenericTagsDoNotCount(t *testing.T) {
	grounded := scoreEnrichment(domain.ChunkEnrichment{Tags: []string{"greenhouse", "tomatoes", "soil"}}, "x")
	generic := scoreEnrichment(domain.ChunkEnrichment{Tags: []string{"misc", "general", "other"}}, "x")
	if grounded.Score <= generic.Score {
		t.Fatalf("specific tags (%v) should outscore generic tags (%v)", grounded.Score, generic.Score)
	}
}

func TestScoreEnrichmentPenalizesHallucinatedSummary(t *testing.T) {
	text := "Shopping list: flour, eggs, butter, sugar."
	grounded := scoreEnrichment(domain.ChunkEnrichment{Summary: "A shopping list with flour, eggs, butter and sugar."}, text)
	hallucinated := scoreEnrichment(domain.ChunkEnrichment{Summary: "Detailed analysis of quarterly financial projections and market trends."}, text)
	if grounded.Score <= hallucinated.Score {
		t.Fatalf("grounded summary (%v) should outscore hallucinated one (%v)", grounded.Score, hallucinated.Score)
	}
}
