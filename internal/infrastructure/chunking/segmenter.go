package chunking

import (
	"regexp"
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

// Separator lines (===, ---, ***) or blank-line runs end a segment.
var splitPattern = regexp.MustCompile(`\n[ \t]*(?:={3,}|-{3,}|\*{3,})[ \t]*\n|\n[ \t]*\n`)

// Boundary candidates for oversized segments, in priority order.
var (
	sentenceEnd = regexp.MustCompile(`[.!?]['")\]]?(\s)`)
)

// Segmenter splits raw document text into overlapping spans bounded by
// MaxLength. Consecutive spans carry a tail of the previous span, marked
// with an ellipsis, so retrieval keeps cross-chunk context.
type Segmenter struct {
	MaxLength int
	MinLength int
	Overlap   int
}

func NewSegmenter(maxLength, minLength, overlap int) *Segmenter {
	if maxLength <= 0 {
		maxLength = 4000
	}
	if minLength < 0 {
		minLength = 0
	}
	if overlap < 0 || overlap >= maxLength {
		overlap = maxLength / 20
	}
	return &Segmenter{
		MaxLength: maxLength,
		MinLength: minLength,
		Overlap:   overlap,
	}
}

// Segment splits text into spans, applying format-aware preprocessing
// for HTML and Markdown inputs.
func (s *Segmenter) Segment(text, ext string) []domain.Segment {
	var headers *headerIndex
	var fences *fenceStore

	switch strings.ToLower(ext) {
	case ".html", ".htm":
		text = StripHTML(text)
	case ".md", ".markdown":
		text, fences = extractFences(text)
		headers = indexHeaders(text)
	}

	segments := s.heuristicSplit(text)
	if len(segments) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		segments = []domain.Segment{{Text: trimmed, CharStart: 0, CharEnd: len(text)}}
	}

	segments = s.splitOversized(segments)

	for i := range segments {
		if headers != nil {
			if prefix := headers.contextAt(segments[i].CharStart); prefix != "" {
				segments[i].Text = prefix + "\n\n" + segments[i].Text
			}
		}
		if fences != nil {
			segments[i].Text = fences.restore(segments[i].Text)
		}
	}

	return s.applyOverlap(segments)
}

func (s *Segmenter) heuristicSplit(text string) []domain.Segment {
	var segments []domain.Segment
	lastEnd := 0

	emit := func(start, end int) {
		trimmed := strings.TrimSpace(text[start:end])
		if len(trimmed) >= s.MinLength {
			segments = append(segments, domain.Segment{
				Text:      trimmed,
				CharStart: start,
				CharEnd:   end,
			})
		}
	}

	for _, match := range splitPattern.FindAllStringIndex(text, -1) {
		emit(lastEnd, match[0])
		lastEnd = match[1]
	}
	if lastEnd < len(text) {
		emit(lastEnd, len(text))
	}
	return segments
}

func (s *Segmenter) splitOversized(segments []domain.Segment) []domain.Segment {
	out := make([]domain.Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, s.splitSegment(seg)...)
	}
	return out
}

func (s *Segmenter) splitSegment(seg domain.Segment) []domain.Segment {
	if len(seg.Text) <= s.MaxLength {
		return []domain.Segment{seg}
	}

	cut := s.findBoundary(seg.Text)
	left := strings.TrimSpace(seg.Text[:cut])
	right := strings.TrimSpace(seg.Text[cut:])

	// Offsets stay approximate after a mid-segment cut; spans still nest
	// inside the parent segment.
	leftSeg := domain.Segment{Text: left, CharStart: seg.CharStart, CharEnd: seg.CharStart + cut}
	rightSeg := domain.Segment{Text: right, CharStart: seg.CharStart + cut, CharEnd: seg.CharEnd}

	result := s.splitSegment(leftSeg)
	return append(result, s.splitSegment(rightSeg)...)
}

// findBoundary looks backward from the midpoint for the best cut:
// sentence end, then newline, then comma, then semicolon. Falls back to
// the midpoint itself.
func (s *Segmenter) findBoundary(text string) int {
	mid := len(text) / 2
	window := text[:mid]

	if locs := sentenceEnd.FindAllStringIndex(window, -1); len(locs) > 0 {
		return locs[len(locs)-1][1]
	}
	if idx := strings.LastIndexByte(window, '\n'); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndexByte(window, ','); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndexByte(window, ';'); idx > 0 {
		return idx + 1
	}
	return mid
}

func (s *Segmenter) applyOverlap(segments []domain.Segment) []domain.Segment {
	if s.Overlap <= 0 {
		return segments
	}
	out := make([]domain.Segment, len(segments))
	copy(out, segments)
	for i := 1; i < len(out); i++ {
		tail := overlapTail(segments[i-1].Text, s.Overlap)
		if tail != "" {
			out[i].Text = "…" + tail + "\n\n" + out[i].Text
		}
	}
	return out
}

// overlapTail returns at most n trailing characters of text, cut at a
// word boundary.
func overlapTail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return tail
}
