// Package cache keeps the keyframes live streams read from.
//
// Frames cover the wall-clock window [now, now+horizon] at a fixed step and
// are keyed by the clock revision they were computed under, so a speed change,
// pause or jump can never hand a reader a frame for the old timeline. While
// the clock is paused every step shows the same sky and the window collapses
// to a single frame.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
)

// latestLookback is how many steps GetLatest walks back from now.
const latestLookback = 10

// Config holds cache configuration.
type Config struct {
	Step        time.Duration // Keyframe interval (default: propagation step)
	Horizon     time.Duration // How far ahead to cache (default: propagation horizon)
	GracePeriod time.Duration // Longest a dataset rebuild may serve old frames (default: 30s)
	Buffer      time.Duration // Keep frames this long after their step passes (default: 60s)
}

// CacheEntry wraps a keyframe with generation metadata.
type CacheEntry struct {
	Keyframe    *propagation.Keyframe
	GeneratedAt time.Time
}

// at returns the entry's keyframe stamped with wall time ts. Body positions
// are shared and must not be modified.
func (e *CacheEntry) at(ts time.Time) *propagation.Keyframe {
	kf := *e.Keyframe
	kf.Timestamp = ts
	return &kf
}

// frameKey addresses a frame by the clock revision it belongs to and the
// wall-clock step it is for.
type frameKey struct {
	revision uint64
	at       time.Time
}

// basis is what the current frames were computed from.
type basis struct {
	fetchedAt time.Time
	clock     clock.State
}

// KeyframeCache is safe for concurrent use.
type KeyframeCache struct {
	mu     sync.RWMutex
	frames map[frameKey]*CacheEntry
	still  *CacheEntry // the one frame of a paused clock
	built  basis

	config Config
	prop   *propagation.Propagator
	store  *catalog.Store
	clock  *clock.Clock
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	inGracePeriod atomic.Bool
}

// NewKeyframeCache creates a cache over the propagator's catalog store and
// clock. Frames appear once Start runs.
func NewKeyframeCache(config Config, prop *propagation.Propagator, logger *slog.Logger) *KeyframeCache {
	logger.Info("cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
		"grace_period_seconds", config.GracePeriod.Seconds(),
	)

	return &KeyframeCache{
		frames: make(map[frameKey]*CacheEntry),
		config: config,
		prop:   prop,
		store:  prop.Store(),
		clock:  prop.Clock(),
		logger: logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary.
func (c *KeyframeCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Get returns the frame for the step containing t under the live clock, or
// nil if it has not been computed.
func (c *KeyframeCache) Get(t time.Time) *propagation.Keyframe {
	at := c.RoundToStep(t)
	rev := c.clock.Revision()

	c.mu.RLock()
	kf := c.lookup(rev, at)
	c.mu.RUnlock()

	c.record(kf != nil)
	return kf
}

// GetRecent returns up to count frames ending at the step containing t,
// oldest first, for drawing trails. A paused clock has a single frame.
func (c *KeyframeCache) GetRecent(t time.Time, count int) []*propagation.Keyframe {
	if count <= 0 {
		return nil
	}
	at := c.RoundToStep(t)
	rev := c.clock.Revision()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.still != nil {
		if kf := c.lookup(rev, at); kf != nil {
			return []*propagation.Keyframe{kf}
		}
		return nil
	}

	out := make([]*propagation.Keyframe, 0, count)
	for i := count - 1; i >= 0; i-- {
		if e, ok := c.frames[frameKey{rev, at.Add(-time.Duration(i) * c.config.Step)}]; ok {
			out = append(out, e.Keyframe)
		}
	}
	return out
}

// GetLatest returns the newest frame at or before the current wall time.
func (c *KeyframeCache) GetLatest() *propagation.Keyframe {
	now := c.RoundToStep(time.Now())
	rev := c.clock.Revision()

	c.mu.RLock()
	var kf *propagation.Keyframe
	for i := 0; i < latestLookback && kf == nil; i++ {
		kf = c.lookup(rev, now.Add(-time.Duration(i)*c.config.Step))
	}
	c.mu.RUnlock()

	c.record(kf != nil)
	return kf
}

// lookup finds the frame for rev at step at. Callers hold mu.
func (c *KeyframeCache) lookup(rev uint64, at time.Time) *propagation.Keyframe {
	if c.still != nil {
		if c.built.clock.Revision != rev {
			return nil
		}
		return c.still.at(at)
	}
	if e, ok := c.frames[frameKey{rev, at}]; ok {
		return e.Keyframe
	}
	return nil
}

func (c *KeyframeCache) record(hit bool) {
	if hit {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return
	}
	c.misses.Add(1)
	metrics.IncCacheMisses()
}

// insert stores a frame computed under clock revision rev.
func (c *KeyframeCache) insert(rev uint64, kf *propagation.Keyframe) {
	c.mu.Lock()
	c.frames[frameKey{rev, c.RoundToStep(kf.Timestamp)}] = &CacheEntry{Keyframe: kf, GeneratedAt: time.Now()}
	c.mu.Unlock()
	c.updateMetrics()
}

// Stats returns current cache statistics.
func (c *KeyframeCache) Stats() CacheStats {
	c.mu.RLock()
	st := CacheStats{
		Entries:       len(c.frames),
		SizeBytes:     c.sizeLocked(),
		ClockRevision: c.built.clock.Revision,
		Paused:        c.still != nil,
	}
	if c.still != nil {
		st.Entries = 1
		st.OldestTimestamp = c.still.Keyframe.Timestamp
		st.NewestTimestamp = c.still.Keyframe.Timestamp
	}
	for k := range c.frames {
		if st.OldestTimestamp.IsZero() || k.at.Before(st.OldestTimestamp) {
			st.OldestTimestamp = k.at
		}
		if k.at.After(st.NewestTimestamp) {
			st.NewestTimestamp = k.at
		}
	}
	c.mu.RUnlock()

	st.Hits = c.hits.Load()
	st.Misses = c.misses.Load()
	st.Evictions = c.evictions.Load()
	st.InGracePeriod = c.inGracePeriod.Load()
	return st
}

// CacheStats holds cache statistics for the stats endpoint.
type CacheStats struct {
	Entries         int       `json:"entries"`
	SizeBytes       int64     `json:"size_bytes"`
	OldestTimestamp time.Time `json:"oldest_timestamp"`
	NewestTimestamp time.Time `json:"newest_timestamp"`
	ClockRevision   uint64    `json:"clock_revision"`
	Paused          bool      `json:"paused"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Evictions       int64     `json:"evictions"`
	InGracePeriod   bool      `json:"in_grace_period"`
}

// frameSize is a rough memory footprint of one cached frame.
func frameSize(kf *propagation.Keyframe) int64 {
	if kf == nil {
		return 0
	}
	n := int64(unsafe.Sizeof(*kf)) + int64(unsafe.Sizeof(CacheEntry{})) + int64(unsafe.Sizeof(frameKey{}))
	n += int64(len(kf.Bodies)) * int64(unsafe.Sizeof(propagation.BodyPosition{}))
	for _, b := range kf.Bodies {
		n += int64(len(b.Name) + len(b.Kind))
	}
	return n
}

// sizeLocked estimates the memory held by cached frames. Callers hold mu.
func (c *KeyframeCache) sizeLocked() int64 {
	var total int64
	if c.still != nil {
		total += frameSize(c.still.Keyframe)
	}
	for _, e := range c.frames {
		total += frameSize(e.Keyframe)
	}
	return total
}

// updateMetrics publishes the cache size to Prometheus.
func (c *KeyframeCache) updateMetrics() {
	c.mu.RLock()
	n := len(c.frames)
	if c.still != nil {
		n = 1
	}
	size := c.sizeLocked()
	c.mu.RUnlock()

	metrics.SetCacheEntries(n)
	metrics.SetCacheSizeBytes(size)
}
