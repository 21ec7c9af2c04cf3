package cache

import (
	"context"
	"time"

	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/metrics"
)

// stale reports whether the catalog or the clock changed since the frames
// were computed.
func (c *KeyframeCache) stale() bool {
	ds := c.store.Get()
	if ds == nil {
		return false
	}
	c.mu.RLock()
	b := c.built
	c.mu.RUnlock()
	return !ds.FetchedAt.Equal(b.fetchedAt) || c.clock.Revision() != b.clock.Revision
}

// rebuild recomputes the window for the current dataset and clock.
//
// A clock change drops every frame at once since they describe a timeline
// that no longer exists; the new frames are published one step at a time
// from now, so streams resume after the first. A catalog change under the
// same clock keeps serving the previous frames while their replacements are
// written, for at most GracePeriod.
func (c *KeyframeCache) rebuild(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}
	st := c.clock.Snapshot()

	c.mu.Lock()
	prev := c.built
	newTimeline := prev.fetchedAt.IsZero() || prev.clock.Revision != st.Revision
	dropped := 0
	if newTimeline {
		dropped = len(c.frames)
		c.frames = make(map[frameKey]*CacheEntry)
		c.still = nil
	}
	c.built.clock = st
	c.mu.Unlock()
	c.evicted(dropped)

	c.logger.Info("cache rebuild starting",
		"new_timeline", newTimeline,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		"clock_revision", st.Revision,
		"clock_speed", st.Speed,
		"clock_paused", st.Paused,
	)

	start := time.Now()
	if st.Paused {
		c.hold(ctx, st, ds.FetchedAt)
		return
	}

	grace := !newTimeline
	c.setGrace(grace)
	defer c.setGrace(false)

	now := c.RoundToStep(start)
	generated := 0
	for at := now; !at.After(now.Add(c.config.Horizon)); at = at.Add(c.config.Step) {
		if ctx.Err() != nil {
			c.logger.Warn("cache rebuild cancelled")
			return
		}
		if c.clock.Revision() != st.Revision {
			c.logger.Info("clock changed during cache rebuild, restarting")
			return
		}

		kf, err := c.prop.PropagateState(ctx, st, at)
		if err != nil {
			c.logger.Warn("cache rebuild propagation failed",
				"timestamp", at.Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		c.insert(st.Revision, kf)
		generated++

		if grace && c.config.GracePeriod > 0 && time.Since(start) > c.config.GracePeriod {
			c.logger.Warn("cache rebuild exceeded grace period, dropping previous frames",
				"grace_period_seconds", c.config.GracePeriod.Seconds(),
			)
			c.evicted(c.dropBefore(start))
			grace = false
			c.setGrace(false)
		}
	}

	c.evicted(c.dropBefore(start))
	c.mu.Lock()
	c.built.fetchedAt = ds.FetchedAt
	c.mu.Unlock()

	duration := time.Since(start)
	c.logger.Info("cache rebuild complete",
		"generated", generated,
		"duration_ms", duration.Milliseconds(),
	)
	metrics.ObserveCacheRegenerationDuration(duration)
}

// hold replaces the window with the single frame of a paused clock.
func (c *KeyframeCache) hold(ctx context.Context, st clock.State, fetchedAt time.Time) {
	kf, err := c.prop.PropagateState(ctx, st, c.RoundToStep(time.Now()))
	if err != nil {
		c.logger.Warn("paused frame generation failed", "error", err)
		metrics.IncCacheRegenerationErrors()
		return
	}

	c.mu.Lock()
	dropped := len(c.frames)
	c.frames = make(map[frameKey]*CacheEntry)
	c.still = &CacheEntry{Keyframe: kf, GeneratedAt: time.Now()}
	c.built.fetchedAt = fetchedAt
	c.mu.Unlock()
	c.evicted(dropped)

	c.logger.Info("cache holding paused frame", "jd", kf.JulianDate, "bodies", len(kf.Bodies))
}

// dropBefore removes frames generated before t and returns how many.
func (c *KeyframeCache) dropBefore(t time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.frames {
		if e.GeneratedAt.Before(t) {
			delete(c.frames, k)
			n++
		}
	}
	return n
}

func (c *KeyframeCache) setGrace(on bool) {
	c.inGracePeriod.Store(on)
	metrics.SetCacheGracePeriodActive(on)
}
