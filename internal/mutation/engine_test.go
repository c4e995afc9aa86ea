package mutation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masthead/internal/gateway"
	"masthead/internal/store"
	"masthead/pkg/logging"
	"masthead/pkg/models"
)

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	fail    error
	block   chan struct{} // when non-nil, Mutate waits here
	entered chan struct{} // signaled when Mutate is reached
}

func (f *fakeGateway) ListArticles(_ context.Context, _ models.Status, _ int) ([]models.Article, error) {
	return nil, nil
}

func (f *fakeGateway) Mutate(_ context.Context, articleID string, action models.Action, _ string) (models.ActionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.fail != nil {
		return models.ActionResponse{}, f.fail
	}
	return models.ActionResponse{Status: "updated", ArticleID: articleID, Action: action}, nil
}

func (f *fakeGateway) Health(_ context.Context) (models.HealthResponse, error) {
	return models.HealthResponse{Status: "healthy"}, nil
}

func (f *fakeGateway) IngestNew(_ context.Context) (models.IngestResult, error) {
	return models.IngestResult{Fetched: 3, New: 2, Duplicates: 1}, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() logging.Logger {
	l := logging.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

func pendingArticles() []models.Article {
	return []models.Article{
		{ID: "a", Title: "Alpha", Status: models.StatusPending, GeneratedPost: "post a"},
		{ID: "b", Title: "Bravo", Status: models.StatusPending, GeneratedPost: "post b"},
		{ID: "c", Title: "Charlie", Status: models.StatusPending, GeneratedPost: "post c"},
	}
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Options{FreshnessWindow: time.Minute}, nil, store.Hooks{}, testLogger())
	s.Set(store.ArticlesKey(models.StatusPending), pendingArticles())
	s.Set(store.ArticlesKey(""), pendingArticles())
	return s
}

func TestApplyCommitsOnSuccess(t *testing.T) {
	s := seededStore(t)
	gw := &fakeGateway{}
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	outcome, err := eng.Apply(context.Background(), "a", models.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, "a", outcome.Response.ArticleID)
	assert.Equal(t, models.ActionApprove, outcome.Response.Action)

	// Optimistic removal survives the commit; entries are stale so the next
	// reader refetches authoritative state.
	pending, ok := s.Peek(store.ArticlesKey(models.StatusPending))
	require.True(t, ok)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)
	assert.True(t, s.Stale(store.ArticlesKey(models.StatusPending)))
	assert.True(t, s.Stale(store.ArticlesKey("")))
}

func TestApplyReclassifiesInUnfilteredList(t *testing.T) {
	s := seededStore(t)
	eng := NewEngine(s, &fakeGateway{}, Hooks{}, testLogger())

	_, err := eng.Apply(context.Background(), "b", models.ActionApprove, "rewritten post")
	require.NoError(t, err)

	all, ok := s.Peek(store.ArticlesKey(""))
	require.True(t, ok)
	require.Len(t, all, 3)
	assert.Equal(t, models.StatusApproved, all[1].Status)
	assert.Equal(t, "rewritten post", all[1].GeneratedPost)
}

func TestApplyRollsBackToExactPreImage(t *testing.T) {
	s := seededStore(t)
	before, _ := s.Peek(store.ArticlesKey(models.StatusPending))
	beforeAll, _ := s.Peek(store.ArticlesKey(""))

	gw := &fakeGateway{fail: errors.New("backend unreachable")}
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	_, err := eng.Apply(context.Background(), "a", models.ActionReject, "")
	require.Error(t, err)

	pending, ok := s.Peek(store.ArticlesKey(models.StatusPending))
	require.True(t, ok)
	assert.Equal(t, before, pending)

	all, ok := s.Peek(store.ArticlesKey(""))
	require.True(t, ok)
	assert.Equal(t, beforeAll, all)

	// Rollback restores correct data; no refetch is owed.
	assert.False(t, s.Stale(store.ArticlesKey(models.StatusPending)))
	assert.False(t, s.Stale(store.ArticlesKey("")))
}

func TestSecondActionOnSameArticleIsRejected(t *testing.T) {
	s := seededStore(t)
	gw := &fakeGateway{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}

	var busyCount int
	var busyMu sync.Mutex
	eng := NewEngine(s, gw, Hooks{
		OnBusy: func(models.Action) {
			busyMu.Lock()
			busyCount++
			busyMu.Unlock()
		},
	}, testLogger())

	firstDone := make(chan error, 1)
	go func() {
		_, err := eng.Apply(context.Background(), "a", models.ActionApprove, "")
		firstDone <- err
	}()

	<-gw.entered

	_, err := eng.Apply(context.Background(), "a", models.ActionDefer, "")
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, gw.callCount(), "busy rejection must not reach the gateway")

	busyMu.Lock()
	assert.Equal(t, 1, busyCount)
	busyMu.Unlock()

	close(gw.block)
	require.NoError(t, <-firstDone)

	// After settlement the article is free again.
	assert.False(t, eng.Busy("a"))
}

func TestActionsOnDistinctArticlesRunConcurrently(t *testing.T) {
	s := seededStore(t)
	gw := &fakeGateway{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	done := make(chan error, 2)
	go func() {
		_, err := eng.Apply(context.Background(), "a", models.ActionApprove, "")
		done <- err
	}()
	go func() {
		_, err := eng.Apply(context.Background(), "b", models.ActionReject, "")
		done <- err
	}()

	// Both must reach the gateway while neither has settled.
	for i := 0; i < 2; i++ {
		select {
		case <-gw.entered:
		case <-time.After(time.Second):
			t.Fatalf("expected both mutations in flight")
		}
	}

	close(gw.block)
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

// sequencedGateway releases Mutate calls per article so overlapping
// mutations can be settled in a chosen order.
type sequencedGateway struct {
	fakeGateway
	failWith error
	seen     chan string
	release  map[string]chan struct{}
}

func (f *sequencedGateway) Mutate(_ context.Context, articleID string, action models.Action, _ string) (models.ActionResponse, error) {
	f.seen <- articleID
	<-f.release[articleID]
	if f.failWith != nil {
		return models.ActionResponse{}, f.failWith
	}
	return models.ActionResponse{Status: "updated", ArticleID: articleID, Action: action}, nil
}

func TestOverlappingRollbacksLeaveQueriesStale(t *testing.T) {
	s := seededStore(t)
	gw := &sequencedGateway{
		failWith: errors.New("backend unreachable"),
		seen:     make(chan string, 2),
		release: map[string]chan struct{}{
			"a": make(chan struct{}),
			"b": make(chan struct{}),
		},
	}
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	done := make(chan error, 2)
	go func() {
		_, err := eng.Apply(context.Background(), "a", models.ActionApprove, "")
		done <- err
	}()
	<-gw.seen // first mutation in flight, snapshot captured on server truth

	go func() {
		_, err := eng.Apply(context.Background(), "b", models.ActionReject, "")
		done <- err
	}()
	<-gw.seen // second snapshot captured on top of the first's optimistic state

	close(gw.release["a"])
	require.Error(t, <-done)
	close(gw.release["b"])
	require.Error(t, <-done)

	// The last rollback restored a pre-image that never existed on the
	// server (article "a" already optimistically removed). Such a restore
	// must not be trusted: the keys stay stale so the next read refetches.
	pending, ok := s.Peek(store.ArticlesKey(models.StatusPending))
	require.True(t, ok)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].ID)
	assert.True(t, s.Stale(store.ArticlesKey(models.StatusPending)))
	assert.True(t, s.Stale(store.ArticlesKey("")))
}

func TestApplySuppressesBackgroundRefreshInFlight(t *testing.T) {
	loads := make(chan struct{}, 8)
	loader := func(_ context.Context, _ store.Key) ([]models.Article, error) {
		loads <- struct{}{}
		return pendingArticles(), nil
	}
	s := store.New(store.Options{FreshnessWindow: time.Minute}, loader, store.Hooks{}, testLogger())
	pendingKey := store.ArticlesKey(models.StatusPending)
	s.Set(pendingKey, pendingArticles())
	s.Set(store.ArticlesKey(""), pendingArticles())
	s.Invalidate(pendingKey)

	gw := &fakeGateway{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := eng.Apply(context.Background(), "a", models.ActionApprove, "")
		done <- err
	}()
	<-gw.entered

	// A stale read while the mutation is in flight must not kick off a
	// refresh that would overwrite the optimistic removal.
	data, stale, err := s.Get(context.Background(), pendingKey)
	require.NoError(t, err)
	assert.True(t, stale)
	require.Len(t, data, 2, "optimistic removal must be visible")

	select {
	case <-loads:
		t.Fatalf("background refresh ran while a snapshot was uncommitted")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.block)
	require.NoError(t, <-done)
}

func TestEventualConsistencyWithMockBackend(t *testing.T) {
	gw := gateway.NewMock()
	loader := func(ctx context.Context, key store.Key) ([]models.Article, error) {
		return gw.ListArticles(ctx, store.KeyStatus(key), 50)
	}
	s := store.New(store.Options{FreshnessWindow: time.Minute}, loader, store.Hooks{}, testLogger())
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	pendingKey := store.ArticlesKey(models.StatusPending)
	initial, _, err := s.Get(context.Background(), pendingKey)
	require.NoError(t, err)
	require.NotEmpty(t, initial)

	_, err = eng.Apply(context.Background(), initial[0].ID, models.ActionApprove, "")
	require.NoError(t, err)

	// The settled optimistic view must match the backend's authoritative
	// pending set.
	authoritative, err := gw.ListArticles(context.Background(), models.StatusPending, 50)
	require.NoError(t, err)

	cached, _ := s.Peek(pendingKey)
	ids := func(list []models.Article) []string {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.ID)
		}
		return out
	}
	assert.Equal(t, ids(authoritative), ids(cached))
}

func TestApplyRejectsUnknownAction(t *testing.T) {
	s := seededStore(t)
	gw := &fakeGateway{}
	eng := NewEngine(s, gw, Hooks{}, testLogger())

	_, err := eng.Apply(context.Background(), "a", models.Action("publish"), "")
	require.Error(t, err)
	assert.Zero(t, gw.callCount())
}

func TestIngestInvalidatesAllArticleQueries(t *testing.T) {
	s := seededStore(t)
	eng := NewEngine(s, &fakeGateway{}, Hooks{}, testLogger())

	result, err := eng.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.New)

	assert.True(t, s.Stale(store.ArticlesKey(models.StatusPending)))
	assert.True(t, s.Stale(store.ArticlesKey("")))
}
