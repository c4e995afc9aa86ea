// Package countdown computes the time remaining until the next posting
// slot. The computation itself is pure; Ticker wraps it in a 1-second tick
// loop that runs only while at least one observer is attached.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"masthead/pkg/logging"
	"masthead/pkg/models"
)

// Placeholder is emitted when the template is empty and there is no next
// slot to count toward.
const Placeholder = "—"

// UrgentWindow is the remaining-time threshold below which the countdown is
// flagged urgent.
const UrgentWindow = 15 * time.Minute

// NextSlot finds the first template slot strictly after now's time of day.
// If every slot has passed, it wraps to the first slot of the next calendar
// day. ok is false only for an empty template.
func NextSlot(now time.Time, template []models.TimeSlot) (slot models.TimeSlot, at time.Time, ok bool) {
	if len(template) == 0 {
		return models.TimeSlot{}, time.Time{}, false
	}
	for _, s := range template {
		instant, err := slotInstant(now, s.Time)
		if err != nil {
			continue
		}
		if instant.After(now) {
			return s, instant, true
		}
	}
	first := template[0]
	instant, err := slotInstant(now.AddDate(0, 0, 1), first.Time)
	if err != nil {
		return models.TimeSlot{}, time.Time{}, false
	}
	return first, instant, true
}

// slotInstant anchors a "HH:MM" clock time to day's calendar date and
// location.
func slotInstant(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// Compute derives the countdown view for a single instant.
func Compute(now time.Time, template []models.TimeSlot) models.CountdownView {
	slot, at, ok := NextSlot(now, template)
	if !ok {
		return models.CountdownView{Label: Placeholder}
	}
	diff := at.Sub(now)
	return models.CountdownView{
		Label:  formatRemaining(diff),
		Urgent: diff < UrgentWindow,
		NextID: slot.ID,
	}
}

func formatRemaining(diff time.Duration) string {
	if diff <= 0 {
		return "Now"
	}
	total := int(diff.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case diff >= time.Hour:
		return fmt.Sprintf("%dh %dm", h, m)
	case diff >= time.Minute:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Ticker drives Compute on a recurring tick while observers are attached.
// It is idle with no goroutine until the first Attach and returns to idle
// when the last observer detaches.
type Ticker struct {
	template []models.TimeSlot
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
	onTick   func()

	mu        sync.Mutex
	observers map[int]chan models.CountdownView
	nextObsID int
	stop      chan struct{} // non-nil while ticking
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithInterval overrides the 1-second tick interval, mainly for tests.
func WithInterval(d time.Duration) Option {
	return func(t *Ticker) { t.interval = d }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Ticker) { t.now = now }
}

// WithTickHook registers a callback invoked once per tick.
func WithTickHook(fn func()) Option {
	return func(t *Ticker) { t.onTick = fn }
}

// NewTicker creates an idle Ticker for the given template.
func NewTicker(template []models.TimeSlot, logger logging.Logger, opts ...Option) *Ticker {
	t := &Ticker{
		template:  template,
		interval:  time.Second,
		logger:    logger,
		now:       time.Now,
		observers: make(map[int]chan models.CountdownView),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot computes the current view without attaching an observer.
func (t *Ticker) Snapshot() models.CountdownView {
	return Compute(t.now(), t.template)
}

// Observers reports the number of attached observers.
func (t *Ticker) Observers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.observers)
}

// Attach registers an observer and returns its view channel plus a detach
// function. The current view is delivered immediately, then once per tick.
// Detach is idempotent and must be called on every exit path; when the last
// observer detaches the tick loop stops. With an empty template the
// placeholder view is delivered once and no ticking starts.
func (t *Ticker) Attach() (<-chan models.CountdownView, func()) {
	ch := make(chan models.CountdownView, 8)
	ch <- t.Snapshot()

	if len(t.template) == 0 {
		var once sync.Once
		return ch, func() { once.Do(func() { close(ch) }) }
	}

	t.mu.Lock()
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = ch
	if t.stop == nil {
		t.stop = make(chan struct{})
		go t.run(t.stop)
		t.logger.Debug("Countdown ticking started")
	}
	t.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			if len(t.observers) == 0 && t.stop != nil {
				close(t.stop)
				t.stop = nil
				t.logger.Debug("Countdown ticking stopped, no observers left")
			}
			t.mu.Unlock()
			close(ch)
		})
	}
	return ch, detach
}

func (t *Ticker) run(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.onTick != nil {
				t.onTick()
			}
			t.broadcast(t.Snapshot())
		}
	}
}

// broadcast delivers the view to every observer without blocking; a slow
// observer misses a tick rather than stalling the loop.
func (t *Ticker) broadcast(view models.CountdownView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.observers {
		select {
		case ch <- view:
		default:
		}
	}
}
