// Package gateway is the boundary to the backend that owns article state.
// The core never talks HTTP directly; it consumes this interface so tests
// and mock mode can substitute the transport wholesale.
package gateway

import (
	"context"
	"fmt"

	"masthead/pkg/models"
)

// APIError is returned for non-2xx backend responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// Gateway performs reads and writes against the external owner of truth.
// No caching or retry policy beyond transport-level resilience lives here.
type Gateway interface {
	// ListArticles returns articles, optionally filtered by status
	// (empty status means all). Idempotent, no side effects.
	ListArticles(ctx context.Context, status models.Status, limit int) ([]models.Article, error)

	// Mutate applies a moderation action to one article. editedPost, when
	// non-empty, replaces the article's generated post as part of the same
	// action.
	Mutate(ctx context.Context, articleID string, action models.Action, editedPost string) (models.ActionResponse, error)

	// Health probes backend availability.
	Health(ctx context.Context) (models.HealthResponse, error)

	// IngestNew triggers the backend's bulk ingestion pipeline. The core
	// treats the result purely as a signal to invalidate article queries.
	IngestNew(ctx context.Context) (models.IngestResult, error)
}
