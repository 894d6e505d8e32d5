package domain

// FileFingerprint is the fast-path identity of an already ingested file.
// A walk hit with matching path, mtime and size skips re-hashing, unless
// the stored status is extract_failed.
type FileFingerprint struct {
	DocumentID int64
	Path       string
	MTimeUnix  int64
	SizeBytes  int64
	Status     DocumentStatus
}

// Extraction is the result of format-specific text extraction.
type Extraction struct {
	Text     string
	FileType string
	Meta     map[string]any
}

// Segment is one raw text span produced by the segmenter before dedup
// and persistence.
type Segment struct {
	Text      string
	CharStart int
	CharEnd   int
}
