package domain

// LinkType classifies an extracted reference.
type LinkType string

const (
	LinkURL   LinkType = "url"
	LinkEmail LinkType = "email"
)

// Link is a hyperlink or mail reference extracted from a document's raw
// text. It is a derived fact table for relationship queries and is not
// consumed by retrieval.
type Link struct {
	ID         int64    `json:"id"`
	DocumentID int64    `json:"document_id"`
	URL        string   `json:"url"`
	Text       string   `json:"text,omitempty"`
	Type       LinkType `json:"type"`
	Domain     string   `json:"domain"`
}
