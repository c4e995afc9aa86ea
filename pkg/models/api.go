package models

// ActionResponse is the backend's acknowledgement of a moderation action.
type ActionResponse struct {
	Status    string `json:"status"` // "updated"
	ArticleID string `json:"article_id"`
	Action    Action `json:"action"`
}

// HealthResponse is the backend's health probe result.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" | "unhealthy"
	Service string `json:"service"`
}

// IngestResult summarizes a bulk ingestion run triggered upstream.
type IngestResult struct {
	Fetched    int `json:"fetched"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// ArticlesView is the read-hook shape served to the presentation layer:
// cached data plus loading/staleness flags.
type ArticlesView struct {
	Articles []Article `json:"articles"`
	Loading  bool      `json:"loading"`
	Stale    bool      `json:"stale"`
}

// ScheduleView is the derived day schedule served to the presentation layer.
type ScheduleView struct {
	Slots  []SlotView `json:"slots"`
	Posted int        `json:"posted"`
	Total  int        `json:"total"`
}

// CountdownView is the next-slot countdown served to the presentation layer.
type CountdownView struct {
	Label  string `json:"label"`
	Urgent bool   `json:"urgent"`
	NextID string `json:"next_slot_id,omitempty"`
}

// ErrorResponse is the uniform error body for API handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}
