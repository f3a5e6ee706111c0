package models

import "time"

// SearchResponse is the JSON body returned by GET /search.
type SearchResponse struct {
	TextBlocks   []TextBlock   `json:"text_blocks"`
	References   []Reference   `json:"references"`
	InlineImages []InlineImage `json:"inline_images"`
	Metadata     Metadata      `json:"metadata"`
}

// Metadata carries request accounting attached to every search response.
type Metadata struct {
	CreditsUsed int    `json:"credits_used"`
	Version     string `json:"version"`
}

// UsageResponse reports a key's metered usage for one day.
type UsageResponse struct {
	Date        string `json:"date"`
	CreditsUsed int    `json:"credits_used"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    time.Duration     `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
