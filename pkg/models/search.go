package models

// Block types used inside SearchResult.TextBlocks.
const (
	BlockTypeParagraph = "paragraph"
	BlockTypeList      = "list"
)

// SearchRequest carries the query parameters accepted by GET /search.
type SearchRequest struct {
	Query          string `query:"query" validate:"required,min=1"`
	MaxWaitSeconds int    `query:"max_wait_seconds" validate:"omitempty,gte=1,lte=300"`
}

// TextBlock is one structured piece of answer text. Type is either
// "paragraph" (Snippet set) or "list" (Items set).
type TextBlock struct {
	Type    string   `json:"type"`
	Snippet string   `json:"snippet,omitempty"`
	Items   []string `json:"items,omitempty"`
}

// Reference is a source link extracted from the results page.
type Reference struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Snippet   string `json:"snippet"`
	Source    string `json:"source"`
	Thumbnail string `json:"thumbnail"`
	Favicon   string `json:"favicon"`
	Index     int    `json:"index"`
}

// InlineImage is an image embedded in the answer content.
type InlineImage struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

// SearchResult is the structured content extracted from one rendered
// results page.
type SearchResult struct {
	TextBlocks   []TextBlock   `json:"text_blocks"`
	References   []Reference   `json:"references"`
	InlineImages []InlineImage `json:"inline_images"`
}

// HasReferences reports whether at least one reference was extracted,
// which is the signal that the answer finished rendering.
func (r *SearchResult) HasReferences() bool {
	return r != nil && len(r.References) > 0
}

// Empty reports whether nothing usable was extracted at all.
func (r *SearchResult) Empty() bool {
	return r == nil || (len(r.TextBlocks) == 0 && len(r.References) == 0)
}
