package chunking

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

// Fenced code blocks are pulled out before splitting so separator lines
// inside code cannot fragment a block, then restored per chunk.

type fenceStore struct {
	blocks []string
}

func fencePlaceholder(i int) string {
	return fmt.Sprintf("\x00FENCE%d\x00", i)
}

var fenceBlockPattern = regexp.MustCompile("(?ms)^```[^\n]*\n.*?^```[ \t]*$")

func extractFences(text string) (string, *fenceStore) {
	store := &fenceStore{}
	replaced := fenceBlockPattern.ReplaceAllStringFunc(text, func(block string) string {
		store.blocks = append(store.blocks, block)
		return fencePlaceholder(len(store.blocks) - 1)
	})
	if len(store.blocks) == 0 {
		return text, nil
	}
	return replaced, store
}

func (f *fenceStore) restore(text string) string {
	for i, block := range f.blocks {
		text = strings.ReplaceAll(text, fencePlaceholder(i), block)
	}
	return text
}

// headerIndex remembers which h1/h2/h3 headers precede each offset so a
// chunk can be prefixed with its section context.
type headerIndex struct {
	offsets  []int
	contexts []string
}

var headerPattern = regexp.MustCompile(`(?m)^(#{1,3})[ \t]+(.+)$`)

func indexHeaders(text string) *headerIndex {
	matches := headerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	idx := &headerIndex{}
	var h1, h2, h3 string
	for _, m := range matches {
		level := m[3] - m[2]
		title := strings.TrimSpace(text[m[4]:m[5]])
		switch level {
		case 1:
			h1, h2, h3 = title, "", ""
		case 2:
			h2, h3 = title, ""
		case 3:
			h3 = title
		}
		parts := make([]string, 0, 3)
		for _, p := range []string{h1, h2, h3} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		idx.offsets = append(idx.offsets, m[0])
		idx.contexts = append(idx.contexts, strings.Join(parts, " > "))
	}
	return idx
}

// contextAt returns the header chain in effect at the given offset, or
// empty when no header precedes it.
func (h *headerIndex) contextAt(offset int) string {
	if h == nil {
		return ""
	}
	i := sort.SearchInts(h.offsets, offset+1) - 1
	if i < 0 {
		return ""
	}
	return h.contexts[i]
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockEnd      = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote)>|<br\s*/?>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// StripHTML drops tags before segmentation, keeping block boundaries as
// blank lines.
func StripHTML(text string) string {
	text = scriptPattern.ReplaceAllString(text, "")
	text = blockEnd.ReplaceAllString(text, "\n\n")
	text = tagPattern.ReplaceAllString(text, "")
	return html.UnescapeString(text)
}
