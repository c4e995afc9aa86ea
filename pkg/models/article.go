package models

import "time"

// Status is the moderation state of an article. Exactly one status applies
// at any instant; the statuses partition the article set into disjoint
// query results.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusDeferred Status = "deferred"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDeferred:
		return true
	}
	return false
}

// Action is an operator decision on an article.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDefer   Action = "defer"
)

// Valid reports whether a is a known action value.
func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionDefer:
		return true
	}
	return false
}

// ResultingStatus returns the status an article ends up in after the action.
func (a Action) ResultingStatus() Status {
	switch a {
	case ActionApprove:
		return StatusApproved
	case ActionReject:
		return StatusRejected
	case ActionDefer:
		return StatusDeferred
	}
	return StatusPending
}

// Article is the moderatable unit: a scored news item with a generated
// social post draft. ID and CreatedAt are immutable; Status only changes
// through the mutation engine.
type Article struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	URL                 string    `json:"url"`
	Source              string    `json:"source"`
	RelevanceScore      *int      `json:"relevance_score"`
	NewsworthinessScore *int      `json:"newsworthiness_score"`
	Summary             string    `json:"summary"`
	GeneratedPost       string    `json:"generated_post"`
	Hashtags            []string  `json:"hashtags"`
	Status              Status    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
}

// Clone returns a deep copy of the article. Slices are copied so mutating
// the clone never aliases the original.
func (a Article) Clone() Article {
	out := a
	if a.RelevanceScore != nil {
		v := *a.RelevanceScore
		out.RelevanceScore = &v
	}
	if a.NewsworthinessScore != nil {
		v := *a.NewsworthinessScore
		out.NewsworthinessScore = &v
	}
	if a.Hashtags != nil {
		out.Hashtags = append([]string(nil), a.Hashtags...)
	}
	return out
}

// CloneArticles deep-copies a result set. A nil slice stays nil so
// "never fetched" remains distinguishable from "fetched and empty".
func CloneArticles(articles []Article) []Article {
	if articles == nil {
		return nil
	}
	out := make([]Article, len(articles))
	for i, a := range articles {
		out[i] = a.Clone()
	}
	return out
}

// IntPtr is a convenience for building score fields in fixtures and tests.
func IntPtr(v int) *int {
	return &v
}
