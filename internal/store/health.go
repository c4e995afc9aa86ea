package store

import (
	"context"
	"sync"
	"time"

	"masthead/pkg/logging"
	"masthead/pkg/models"
)

// HealthPoller proactively probes backend availability on its own interval,
// independent of cache staleness, so the dashboard notices a dead backend
// without waiting for a read to fail.
type HealthPoller struct {
	probe    func(ctx context.Context) (models.HealthResponse, error)
	interval time.Duration
	logger   logging.Logger

	// onChange fires when the health verdict flips, outside the lock.
	onChange func(models.HealthResponse)

	mu        sync.RWMutex
	last      models.HealthResponse
	checkedAt time.Time
	probed    bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHealthPoller creates a poller. interval defaults to 60s.
func NewHealthPoller(probe func(ctx context.Context) (models.HealthResponse, error), interval time.Duration, onChange func(models.HealthResponse), logger logging.Logger) *HealthPoller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &HealthPoller{
		probe:    probe,
		interval: interval,
		onChange: onChange,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start probes immediately, then on every interval tick until Stop.
func (p *HealthPoller) Start() {
	go func() {
		defer close(p.done)

		p.runProbe()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.runProbe()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop halts polling. Safe to call more than once.
func (p *HealthPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Last returns the most recent health verdict. ok is false before the
// first probe completes.
func (p *HealthPoller) Last() (models.HealthResponse, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.probed
}

func (p *HealthPoller) runProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := p.probe(ctx)
	if err != nil {
		// Transport failure is itself a verdict
		result = models.HealthResponse{Status: "unhealthy", Service: "backend"}
		if p.logger != nil {
			p.logger.WithError(err).Warn("Backend health probe failed")
		}
	}

	p.mu.Lock()
	changed := !p.probed || p.last.Status != result.Status
	p.last = result
	p.checkedAt = time.Now()
	p.probed = true
	p.mu.Unlock()

	if changed && p.onChange != nil {
		p.onChange(result)
	}
}
