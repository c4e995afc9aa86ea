package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masthead/pkg/models"
)

func TestMockListFiltersByStatus(t *testing.T) {
	m := NewMock()

	pending, err := m.ListArticles(context.Background(), models.StatusPending, 50)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
	for _, a := range pending {
		assert.Equal(t, models.StatusPending, a.Status)
	}

	all, err := m.ListArticles(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	two, err := m.ListArticles(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestMockMutateMovesArticleBetweenStatuses(t *testing.T) {
	m := NewMock()

	resp, err := m.Mutate(context.Background(), "mock-1", models.ActionApprove, "edited")
	require.NoError(t, err)
	assert.Equal(t, "updated", resp.Status)
	assert.Equal(t, models.ActionApprove, resp.Action)

	approved, err := m.ListArticles(context.Background(), models.StatusApproved, 50)
	require.NoError(t, err)

	var found *models.Article
	for i := range approved {
		if approved[i].ID == "mock-1" {
			found = &approved[i]
		}
	}
	require.NotNil(t, found, "approved article must appear in the approved list")
	assert.Equal(t, "edited", found.GeneratedPost)

	pending, err := m.ListArticles(context.Background(), models.StatusPending, 50)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestMockMutateUnknownArticle(t *testing.T) {
	m := NewMock()

	_, err := m.Mutate(context.Background(), "nope", models.ActionReject, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestMockListReturnsCopies(t *testing.T) {
	m := NewMock()

	first, err := m.ListArticles(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Title = "mutated by caller"

	again, err := m.ListArticles(context.Background(), "", 1)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated by caller", again[0].Title)
}
