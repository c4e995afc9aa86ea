package hub

import (
	"time"

	"masthead/internal/schedule"
	"masthead/internal/store"
	"masthead/pkg/logging"
	"masthead/pkg/models"
)

// Bridge turns store change notifications into hub broadcasts: every
// article-key change is announced on the articles channel, and changes to
// the approved set additionally re-derive and push the schedule view.
type Bridge struct {
	store    *store.Store
	hub      *Hub
	template []models.TimeSlot
	logger   logging.Logger
	cancel   func()
	done     chan struct{}
}

// NewBridge wires a store to a hub. Start must be called to begin
// forwarding.
func NewBridge(st *store.Store, h *Hub, template []models.TimeSlot, logger logging.Logger) *Bridge {
	return &Bridge{
		store:    st,
		hub:      h,
		template: template,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start subscribes to the store and forwards changes until Stop is called.
func (b *Bridge) Start() {
	keys, cancel := b.store.Subscribe()
	b.cancel = cancel

	go func() {
		defer close(b.done)
		for key := range keys {
			b.forward(key)
		}
	}()
	b.logger.Debug("Store-to-hub bridge started")
}

// Stop unsubscribes from the store and waits for the forwarding loop to
// drain.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}

func (b *Bridge) forward(key store.Key) {
	b.hub.BroadcastEvent("articles_changed", ChannelArticles, map[string]interface{}{
		"key": string(key),
	})

	// Schedule depends only on the approved set.
	if key != store.ArticlesKey(models.StatusApproved) {
		return
	}
	approved, ok := b.store.Peek(key)
	if !ok {
		return
	}
	view := schedule.View(time.Now(), b.template, approved)
	b.hub.BroadcastEvent("schedule_updated", ChannelSchedule, map[string]interface{}{
		"slots":  view.Slots,
		"posted": view.Posted,
		"total":  view.Total,
	})
}
