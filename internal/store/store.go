// Package store is the single shared mutable resource of the sync core: an
// in-memory table of query results keyed by query identity. It serves reads
// stale-while-revalidate, supports point-in-time snapshot/restore for the
// mutation engine, and notifies subscribers on every visible change so
// dependent derivations re-run without polling.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"masthead/pkg/logging"
	"masthead/pkg/models"
)

// Key identifies a cached result set. Two queries with equal keys always
// address the same logical result set.
type Key string

// ArticlesKey builds the key for an article list query. An empty status is
// the unfiltered list.
func ArticlesKey(status models.Status) Key {
	if status == "" {
		return "articles"
	}
	return Key("articles:" + string(status))
}

// KeyStatus extracts the status filter encoded in an article query key.
func KeyStatus(key Key) models.Status {
	s, found := strings.CutPrefix(string(key), "articles:")
	if !found {
		return ""
	}
	return models.Status(s)
}

// AllArticleKeys returns every article query key, used for bulk
// invalidation after ingestion.
func AllArticleKeys() []Key {
	return []Key{
		ArticlesKey(""),
		ArticlesKey(models.StatusPending),
		ArticlesKey(models.StatusApproved),
		ArticlesKey(models.StatusRejected),
		ArticlesKey(models.StatusDeferred),
	}
}

// Loader fetches the authoritative result set for a key.
type Loader func(ctx context.Context, key Key) ([]models.Article, error)

// Hooks are optional metric callbacks, invoked outside the store lock.
type Hooks struct {
	OnHit     func(key string)
	OnMiss    func(key string)
	OnStale   func(key string)
	OnStore   func(key string)
	OnRefresh func(key string)
}

// Options configures the store.
type Options struct {
	// FreshnessWindow is how long a fetched entry is served without
	// triggering a background refresh. Default 30s.
	FreshnessWindow time.Duration
}

type entry struct {
	data      []models.Article
	fetchedAt time.Time
	stale     bool
}

// Store is the in-memory cache table.
type Store struct {
	mu       sync.RWMutex
	entries  map[Key]*entry
	inflight map[Key]bool
	pins     map[Key]int
	subs     map[int]chan Key
	nextSub  int

	// leases serialize overlapping snapshot/restore cycles: at most one
	// mutation holds an uncommitted snapshot per key at a time.
	leaseMu sync.Mutex
	leases  map[Key]*sync.Mutex

	loader Loader
	sf     singleflight.Group
	opts   Options
	hooks  Hooks
	logger logging.Logger

	now func() time.Time
}

// New creates a store. loader may be nil if reads are fed purely via Set.
func New(opts Options, loader Loader, hooks Hooks, logger logging.Logger) *Store {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 30 * time.Second
	}
	return &Store{
		entries:  make(map[Key]*entry),
		inflight: make(map[Key]bool),
		pins:     make(map[Key]int),
		subs:     make(map[int]chan Key),
		leases:   make(map[Key]*sync.Mutex),
		loader:   loader,
		opts:     opts,
		hooks:    hooks,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the cached result for key, loading it synchronously on first
// access. A stale entry is still served immediately; one background refresh
// is kicked off per key (stale-while-revalidate — staleness alone never
// blocks the caller). The second return reports whether the served value
// was stale at read time.
func (s *Store) Get(ctx context.Context, key Key) ([]models.Article, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	if ok {
		data := models.CloneArticles(e.data)
		isStale := e.stale || s.now().Sub(e.fetchedAt) > s.opts.FreshnessWindow
		s.mu.RUnlock()

		if isStale {
			if s.hooks.OnStale != nil {
				s.hooks.OnStale(string(key))
			}
			s.refreshInBackground(key)
		} else if s.hooks.OnHit != nil {
			s.hooks.OnHit(string(key))
		}
		return data, isStale, nil
	}
	s.mu.RUnlock()

	if s.hooks.OnMiss != nil {
		s.hooks.OnMiss(string(key))
	}
	if s.loader == nil {
		return nil, false, nil
	}

	s.setInFlight(key, true)
	result, err, _ := s.sf.Do(string(key), func() (interface{}, error) {
		data, err := s.loader(ctx, key)
		if err != nil {
			return nil, err
		}
		s.Set(key, data)
		return data, nil
	})
	s.setInFlight(key, false)
	if err != nil {
		return nil, false, err
	}
	return models.CloneArticles(result.([]models.Article)), false, nil
}

// Peek returns the cached result without triggering any load. The second
// return distinguishes "fetched and empty" from "never fetched".
func (s *Store) Peek(key Key) ([]models.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return models.CloneArticles(e.data), true
}

// Stale reports whether the entry for key exists and is past its freshness
// window or explicitly invalidated.
func (s *Store) Stale(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	return e.stale || s.now().Sub(e.fetchedAt) > s.opts.FreshnessWindow
}

// InFlight reports whether a load for key is currently outstanding.
func (s *Store) InFlight(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight[key]
}

// Set replaces the entry's data with a completed fetch result, stamps its
// fetch time and notifies subscribers.
func (s *Store) Set(key Key, data []models.Article) {
	s.mu.Lock()
	s.entries[key] = &entry{
		data:      models.CloneArticles(data),
		fetchedAt: s.now(),
	}
	s.mu.Unlock()

	if s.hooks.OnStore != nil {
		s.hooks.OnStore(string(key))
	}
	s.notify(key)
}

// Invalidate marks entries stale so the next reader refetches. Data is kept
// and keeps being served in the meantime. Never-fetched keys are ignored.
func (s *Store) Invalidate(keys ...Key) {
	touched := make([]Key, 0, len(keys))
	s.mu.Lock()
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			e.stale = true
			touched = append(touched, key)
		}
	}
	s.mu.Unlock()

	for _, key := range touched {
		s.notify(key)
	}
}

// Snapshot returns an independent deep copy of the entry's current data for
// later restoration. ok is false if the key was never fetched.
func (s *Store) Snapshot(key Key) ([]models.Article, bool) {
	return s.Peek(key)
}

// Restore overwrites the entry's data with a prior snapshot, preserving the
// original fetch time: the pre-image was correct, so no refetch is owed.
func (s *Store) Restore(key Key, data []models.Article) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{fetchedAt: s.now()}
		s.entries[key] = e
	}
	e.data = models.CloneArticles(data)
	s.mu.Unlock()

	s.notify(key)
}

// Update applies fn to the entry's current data and stores the result,
// notifying subscribers. Used for speculative (optimistic) transformations.
// fn receives a deep copy and may return it modified.
func (s *Store) Update(key Key, fn func(data []models.Article) []models.Article) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.data = fn(models.CloneArticles(e.data))
	s.mu.Unlock()

	s.notify(key)
}

// Acquire takes the snapshot leases for the given keys, blocking while any
// other mutation holds an uncommitted snapshot on one of them. Keys are
// locked in sorted order to avoid lock-order inversion. The returned
// release must be called exactly once.
func (s *Store) Acquire(keys ...Key) (release func()) {
	sorted := append([]Key(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locks := make([]*sync.Mutex, 0, len(sorted))
	for _, key := range sorted {
		s.leaseMu.Lock()
		l, ok := s.leases[key]
		if !ok {
			l = &sync.Mutex{}
			s.leases[key] = l
		}
		s.leaseMu.Unlock()
		l.Lock()
		locks = append(locks, l)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release in reverse acquisition order
			for i := len(locks) - 1; i >= 0; i-- {
				locks[i].Unlock()
			}
		})
	}
}

// Pin marks keys as carrying an uncommitted snapshot. Pinned keys are
// excluded from background refresh so a completed fetch cannot clobber
// speculative state mid-flight. The return reports whether any key was
// already pinned: the caller's snapshot then sits on top of another
// mutation's uncommitted state rather than on server truth, and its
// rollback must invalidate instead of trusting the pre-image.
func (s *Store) Pin(keys ...Key) (composed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if s.pins[key] > 0 {
			composed = true
		}
		s.pins[key]++
	}
	return composed
}

// Unpin releases one prior Pin of each key.
func (s *Store) Unpin(keys ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if s.pins[key] > 1 {
			s.pins[key]--
		} else {
			delete(s.pins, key)
		}
	}
}

// Pinned reports whether key carries an uncommitted snapshot.
func (s *Store) Pinned(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pins[key] > 0
}

// Subscribe registers for change notifications. The returned channel
// receives the key of every set/invalidate/restore/update. Slow consumers
// drop notifications rather than blocking writers. cancel must be called
// when done.
func (s *Store) Subscribe() (<-chan Key, func()) {
	ch := make(chan Key, 64)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(key Key) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- key:
		default:
		}
	}
}

func (s *Store) setInFlight(key Key, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.inflight[key] = true
	} else {
		delete(s.inflight, key)
	}
}

// setIfUnpinned stores a completed fetch unless a mutation pinned the key
// in the meantime; the mutation's settle step then owns the entry's next
// state and the fetched result is discarded.
func (s *Store) setIfUnpinned(key Key, data []models.Article) bool {
	s.mu.Lock()
	if s.pins[key] > 0 {
		s.mu.Unlock()
		return false
	}
	s.entries[key] = &entry{
		data:      models.CloneArticles(data),
		fetchedAt: s.now(),
	}
	s.mu.Unlock()

	if s.hooks.OnStore != nil {
		s.hooks.OnStore(string(key))
	}
	s.notify(key)
	return true
}

// refreshInBackground revalidates a stale key once, no matter how many
// readers observed it stale. Keys with an uncommitted snapshot are left
// alone; the entry stays stale, so a read after settlement retries.
func (s *Store) refreshInBackground(key Key) {
	if s.loader == nil || s.Pinned(key) {
		return
	}
	go func() {
		_, _, _ = s.sf.Do("refresh:"+string(key), func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			data, err := s.loader(ctx, key)
			if err != nil {
				if s.logger != nil {
					s.logger.WithError(err).WithField("key", string(key)).Warn("Background refresh failed")
				}
				return nil, err
			}
			if s.setIfUnpinned(key, data) && s.hooks.OnRefresh != nil {
				s.hooks.OnRefresh(string(key))
			}
			return nil, nil
		})
	}()
}
