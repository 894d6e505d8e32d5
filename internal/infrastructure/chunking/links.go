package chunking

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	mdLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
)

// LinkExtractor pulls URL and email references out of raw text, recorded
// as Link fact rows.
type LinkExtractor struct{}

func NewLinkExtractor() *LinkExtractor {
	return &LinkExtractor{}
}

func (e *LinkExtractor) ExtractLinks(text string) []domain.Link {
	var links []domain.Link
	seen := make(map[string]bool)

	anchors := make(map[string]string)
	for _, m := range mdLinkPattern.FindAllStringSubmatch(text, -1) {
		anchors[strings.TrimRight(m[2], ".,;")] = m[1]
	}

	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;")
		if seen[raw] {
			continue
		}
		seen[raw] = true
		links = append(links, domain.Link{
			URL:    raw,
			Text:   anchors[raw],
			Type:   domain.LinkURL,
			Domain: hostOf(raw),
		})
	}

	for _, raw := range emailPattern.FindAllString(text, -1) {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		at := strings.LastIndexByte(raw, '@')
		links = append(links, domain.Link{
			URL:    "mailto:" + raw,
			Text:   raw,
			Type:   domain.LinkEmail,
			Domain: raw[at+1:],
		})
	}

	return links
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
