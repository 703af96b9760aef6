package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seuros/scalex/internal/logging"
)

// Refresher is anything that can refresh the active page.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshScheduler refreshes the active page on a fixed interval.
type RefreshScheduler struct {
	target   Refresher
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewRefreshScheduler creates a scheduler. A non-positive interval disables it.
func NewRefreshScheduler(target Refresher, interval time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		target:   target,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the refresh loop.
func (rs *RefreshScheduler) Start(ctx context.Context) {
	if rs.interval <= 0 {
		logging.L().Debug("periodic refresh disabled")
		return
	}
	if !rs.started.CompareAndSwap(false, true) {
		return
	}
	logging.L().Info("starting refresh scheduler", "interval", rs.interval)
	go rs.run(ctx)
}

// Stop ends the loop and waits for an in-flight refresh to finish.
func (rs *RefreshScheduler) Stop() {
	rs.stopOnce.Do(func() { close(rs.stopChan) })
	if rs.started.Load() {
		<-rs.done
	}
}

func (rs *RefreshScheduler) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := rs.target.Refresh(ctx); err != nil {
				logging.L().Warn("scheduled refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		case <-rs.stopChan:
			return
		}
	}
}
