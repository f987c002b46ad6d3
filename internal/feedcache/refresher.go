package feedcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher runs the cache's refresh cycle on a fixed interval,
// independent of any in-flight research request. It has an explicit
// lifecycle: Start launches the loop, Stop cancels it and waits.
type Refresher struct {
	cache    *Cache
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewRefresher creates a refresher for the given cache.
func NewRefresher(cache *Cache, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Refresher{
		cache:    cache,
		interval: interval,
	}
}

// Start launches the refresh loop. The first cycle runs immediately so the
// cache is warm before the first tick. Calling Start twice is a no-op.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.runOnce(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()

	zap.L().Info("feedcache: refresher started", zap.Duration("interval", r.interval))
}

// Stop cancels the loop and waits for any in-flight cycle to finish.
// Safe to call before Start or more than once.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	zap.L().Info("feedcache: refresher stopped")
}

func (r *Refresher) runOnce(ctx context.Context) {
	if _, err := r.cache.RunCycle(ctx); err != nil && ctx.Err() == nil {
		zap.L().Error("feedcache: refresh cycle failed", zap.Error(err))
	}
}
