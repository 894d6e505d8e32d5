package chunking

import (
	"testing"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func TestExtractLinksFindsURLsAndEmails(t *testing.T) {
	e := NewLinkExtractor()
	text := "See https://example.org/docs and write to archivist@example.org for access."

	links := e.ExtractLinks(text)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Type != domain.LinkURL || links[0].Domain != "example.org" {
		t.Fatalf("unexpected url link: %+v", links[0])
	}
	if links[1].Type != domain.LinkEmail || links[1].Domain != "example.org" {
		t.Fatalf("unexpected email link: %+v", links[1])
	}
}

func TestExtractLinksDeduplicatesAndTrimsPunctuation(t *testing.T) {
	e := NewLinkExtractor()
	text := "Visit https://example.org/a. Again: https://example.org/a"

	links := e.ExtractLinks(text)
	if len(links) != 1 {
		t.Fatalf("expected deduplicated link, got %d", len(links))
	}
	if links[0].URL != "https://example.org/a" {
		t.Fatalf("expected trailing dot trimmed, got %q", links[0].URL)
	}
}

func TestExtractLinksKeepsMarkdownAnchorText(t *testing.T) {
	e := NewLinkExtractor()
	text := "Read [the manual](https://example.org/manual) first."

	links := e.ExtractLinks(text)
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].Text != "the manual" {
		t.Fatalf("expected anchor text, got %q", links[0].Text)
	}
}

func TestExtractLinksEmptyText(t *testing.T) {
	e := NewLinkExtractor()
	if links := e.ExtractLinks("plain text without references"); len(links) != 0 {
		t.Fatalf("expected no links, got %v", links)
	}
}
