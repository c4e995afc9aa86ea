// Package mutation orchestrates the lifecycle of one operator action:
// snapshot the affected cache entries, apply the change speculatively so
// the UI reacts instantly, issue the remote call, then either reconcile
// against server truth or restore the exact pre-image. The settle step runs
// on every exit path.
package mutation

import (
	"context"
	"errors"
	"sync"
	"time"

	"masthead/internal/gateway"
	"masthead/internal/store"
	"masthead/pkg/logging"
	"masthead/pkg/models"
)

// ErrBusy is returned when an action targets an article that already has a
// mutation in flight. The caller must wait for settlement; nothing reaches
// the gateway.
var ErrBusy = errors.New("mutation already in flight for this article")

// Outcome describes a settled mutation.
type Outcome struct {
	ArticleID string
	Action    models.Action
	Response  models.ActionResponse
	Duration  time.Duration
}

// Hooks are optional metric callbacks.
type Hooks struct {
	OnSettled func(action models.Action, result string) // result: "success" | "rollback"
	OnBusy    func(action models.Action)
}

// Engine applies moderation actions optimistically against the store and
// reconciles them through the gateway.
type Engine struct {
	store  *store.Store
	gw     gateway.Gateway
	logger logging.Logger
	hooks  Hooks

	mu       sync.Mutex
	inFlight map[string]struct{} // article IDs with an outstanding mutation
}

// NewEngine creates a mutation engine bound to a store and gateway.
func NewEngine(st *store.Store, gw gateway.Gateway, hooks Hooks, logger logging.Logger) *Engine {
	return &Engine{
		store:    st,
		gw:       gw,
		logger:   logger,
		hooks:    hooks,
		inFlight: make(map[string]struct{}),
	}
}

// Busy reports whether articleID has an outstanding mutation.
func (e *Engine) Busy(articleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[articleID]
	return busy
}

// Apply runs the full mutation protocol for one article. A second Apply on
// the same article while one is outstanding fails fast with ErrBusy.
// Actions on distinct articles proceed concurrently.
func (e *Engine) Apply(ctx context.Context, articleID string, action models.Action, editedPost string) (Outcome, error) {
	if !action.Valid() {
		return Outcome{}, errors.New("unknown action: " + string(action))
	}

	e.mu.Lock()
	if _, busy := e.inFlight[articleID]; busy {
		e.mu.Unlock()
		if e.hooks.OnBusy != nil {
			e.hooks.OnBusy(action)
		}
		return Outcome{}, ErrBusy
	}
	e.inFlight[articleID] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, articleID)
		e.mu.Unlock()
	}()

	start := time.Now()

	// Keys whose result set could contain this article: the pending queue
	// and the unfiltered list.
	affected := []store.Key{
		store.ArticlesKey(models.StatusPending),
		store.ArticlesKey(""),
	}

	// Phase 1+2 under the snapshot leases: capture pre-images and apply the
	// speculative transformation. Leases are released before the network
	// call so actions on other articles are not blocked behind this one; a
	// later mutation on the same keys snapshots on top of this optimistic
	// state rather than a stale pre-image. The pin keeps background
	// refreshes off the keys until settle and records whether this
	// snapshot composed on another mutation's uncommitted state.
	release := e.store.Acquire(affected...)
	composed := e.store.Pin(affected...)
	snapshots := make(map[store.Key][]models.Article, len(affected))
	for _, key := range affected {
		if data, ok := e.store.Snapshot(key); ok {
			snapshots[key] = data
		}
	}
	e.store.Update(store.ArticlesKey(models.StatusPending), func(data []models.Article) []models.Article {
		out := make([]models.Article, 0, len(data))
		for _, a := range data {
			if a.ID != articleID {
				out = append(out, a)
			}
		}
		return out
	})
	e.store.Update(store.ArticlesKey(""), func(data []models.Article) []models.Article {
		for i := range data {
			if data[i].ID == articleID {
				data[i].Status = action.ResultingStatus()
				if editedPost != "" {
					data[i].GeneratedPost = editedPost
				}
			}
		}
		return data
	})
	release()

	// Phase 3: the remote call — the only suspension point. The settle
	// below is deferred so commit-or-rollback is reached no matter how the
	// call exits.
	var (
		resp    models.ActionResponse
		callErr error
	)
	func() {
		defer e.settle(affected, snapshots, composed, &callErr, action)
		resp, callErr = e.gw.Mutate(ctx, articleID, action, editedPost)
	}()

	if callErr != nil {
		e.logger.WithError(callErr).WithFields(logging.Fields{
			"article_id": articleID,
			"action":     string(action),
		}).Warn("Mutation failed, cache rolled back")
		return Outcome{}, callErr
	}

	outcome := Outcome{
		ArticleID: articleID,
		Action:    action,
		Response:  resp,
		Duration:  time.Since(start),
	}
	e.logger.WithFields(logging.Fields{
		"article_id": articleID,
		"action":     string(action),
		"duration":   outcome.Duration,
	}).Info("Mutation settled")
	return outcome, nil
}

// settle commits or rolls back exactly once.
//
// Success: drop the snapshots and invalidate every article key (the status
// change also moved the article into another filtered list) so the next
// read pulls authoritative server state.
//
// Failure: restore every snapshot to its exact pre-image. A pre-image
// captured on a quiescent key is server truth, so no refetch is owed. A
// composed pre-image carries another mutation's uncommitted state and
// cannot be trusted after rollback; those keys are invalidated so the next
// read refetches.
func (e *Engine) settle(affected []store.Key, snapshots map[store.Key][]models.Article, composed bool, callErr *error, action models.Action) {
	release := e.store.Acquire(affected...)
	defer release()
	defer e.store.Unpin(affected...)

	if *callErr != nil {
		for key, data := range snapshots {
			e.store.Restore(key, data)
		}
		if composed {
			e.store.Invalidate(affected...)
		}
		if e.hooks.OnSettled != nil {
			e.hooks.OnSettled(action, "rollback")
		}
		return
	}

	e.store.Invalidate(store.AllArticleKeys()...)
	if e.hooks.OnSettled != nil {
		e.hooks.OnSettled(action, "success")
	}
}

// Ingest triggers upstream bulk ingestion. Its only cache effect is
// invalidating the full article query set once the backend reports counts.
func (e *Engine) Ingest(ctx context.Context) (models.IngestResult, error) {
	result, err := e.gw.IngestNew(ctx)
	if err != nil {
		return models.IngestResult{}, err
	}
	e.store.Invalidate(store.AllArticleKeys()...)
	e.logger.WithFields(logging.Fields{
		"fetched":    result.Fetched,
		"new":        result.New,
		"duplicates": result.Duplicates,
		"errors":     result.Errors,
	}).Info("Ingestion completed, article queries invalidated")
	return result, nil
}
