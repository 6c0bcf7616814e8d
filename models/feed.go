package models

// Timeframe values accepted by the feed endpoints.
const (
	Timeframe1h  = "1h"
	Timeframe24h = "24h"
	Timeframe7d  = "7d"
)

// FeedMeta describes one feed payload: how it was requested, how many tokens
// each upstream contributed, and timing information that lets a client
// self-diagnose lag against the configured tick interval.
type FeedMeta struct {
	Limit             int            `json:"limit"`
	Timeframe         string         `json:"timeframe"`
	Count             int            `json:"count"`
	SourceCounts      map[string]int `json:"sourceCounts"`
	Timestamp         int64          `json:"timestamp"`
	PollingIntervalMs int64          `json:"pollingIntervalMs"`
	Unavailable       bool           `json:"unavailable,omitempty"`
}

// FeedPayload is the wire shape shared by the one-shot endpoint and every
// tick of the streaming endpoint.
type FeedPayload struct {
	Success bool     `json:"success"`
	Data    []Token  `json:"data"`
	Meta    FeedMeta `json:"meta"`
}
