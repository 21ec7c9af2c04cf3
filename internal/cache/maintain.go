package cache

import (
	"context"
	"time"

	"github.com/star/orrery/internal/metrics"
)

// staleCheckInterval is how often the loop looks for a clock or catalog
// change between steps.
const staleCheckInterval = 250 * time.Millisecond

// Start computes the initial window, then keeps it rolling until ctx is
// cancelled: every step it fills the leading edge and evicts passed frames,
// and whenever the catalog or the clock changes it rebuilds.
func (c *KeyframeCache) Start(ctx context.Context) {
	if !c.waitForDataset(ctx) {
		return
	}
	c.rebuild(ctx)

	step := time.NewTicker(c.config.Step)
	defer step.Stop()
	check := time.NewTicker(staleCheckInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache generator stopped")
			return
		case <-check.C:
			if c.stale() {
				c.rebuild(ctx)
			}
		case <-step.C:
			c.tick(ctx)
		}
	}
}

// waitForDataset blocks until the store holds a dataset. Returns false if
// ctx is cancelled first.
func (c *KeyframeCache) waitForDataset(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for catalog data")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("catalog data available, building cache")
				return true
			}
		}
	}
}

func (c *KeyframeCache) tick(ctx context.Context) {
	if c.stale() {
		c.rebuild(ctx)
		return
	}
	if c.paused() {
		return
	}
	c.extend(ctx)
	c.evictExpired()
}

func (c *KeyframeCache) paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.still != nil
}

// extend computes every missing step of [now, now+horizon]. Normally that is
// just the new leading edge; a delayed tick leaves more.
func (c *KeyframeCache) extend(ctx context.Context) {
	c.mu.RLock()
	st := c.built.clock
	c.mu.RUnlock()

	now := c.RoundToStep(time.Now())
	for at := now; !at.After(now.Add(c.config.Horizon)); at = at.Add(c.config.Step) {
		c.mu.RLock()
		_, have := c.frames[frameKey{st.Revision, at}]
		c.mu.RUnlock()
		if have {
			continue
		}

		start := time.Now()
		kf, err := c.prop.PropagateState(ctx, st, at)
		if err != nil {
			c.logger.Warn("leading edge generation failed",
				"timestamp", at.Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			return
		}
		c.insert(st.Revision, kf)
		metrics.ObserveCacheRegenerationDuration(time.Since(start))

		c.logger.Debug("leading edge generated",
			"timestamp", at.Format(time.RFC3339),
			"jd", kf.JulianDate,
		)
	}
}

// evictExpired drops frames whose step is more than Buffer in the past and
// any frame left from an earlier clock revision.
func (c *KeyframeCache) evictExpired() int {
	cutoff := time.Now().Add(-c.config.Buffer)

	c.mu.Lock()
	rev := c.built.clock.Revision
	removed := 0
	for k := range c.frames {
		if k.revision != rev || k.at.Before(cutoff) {
			delete(c.frames, k)
			removed++
		}
	}
	c.mu.Unlock()

	c.evicted(removed)
	return removed
}

func (c *KeyframeCache) evicted(n int) {
	if n == 0 {
		return
	}
	c.evictions.Add(int64(n))
	metrics.AddCacheEvictions(n)
	c.updateMetrics()
	c.logger.Debug("cache eviction", "entries_removed", n)
}
