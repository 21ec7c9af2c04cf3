package cache

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/propagation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// testStore holds the built-in planets and the Moon.
func testStore() *catalog.Store {
	store := catalog.NewStore()
	store.Set(catalog.NewDataset("test", time.Now(), nil, nil))
	return store
}

func testPropagator(store *catalog.Store) *propagation.Propagator {
	cfg := propagation.PropConfig{Workers: 2, Step: 5 * time.Second, Horizon: 30 * time.Second}
	return propagation.NewPropagator(store, clock.New(8640), cfg, testLogger())
}

func testConfig() Config {
	return Config{
		Step:        5 * time.Second,
		Horizon:     30 * time.Second,
		GracePeriod: 5 * time.Second,
		Buffer:      10 * time.Second,
	}
}

func testCache(t *testing.T, horizon time.Duration) (*KeyframeCache, *propagation.Propagator, *catalog.Store) {
	t.Helper()
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	if horizon > 0 {
		cfg.Horizon = horizon
	}
	return NewKeyframeCache(cfg, prop, testLogger()), prop, store
}

func TestKeyframeCache(t *testing.T) {
	c, prop, _ := testCache(t, 0)

	target := time.Now().Truncate(5 * time.Second)
	kf, err := prop.PropagateAt(context.Background(), target)
	if err != nil {
		t.Fatalf("PropagateAt failed: %v", err)
	}
	c.insert(prop.Clock().Revision(), kf)

	got := c.Get(target.Add(2 * time.Second))
	if got == nil {
		t.Fatal("expected cache hit, got nil")
	}
	if !got.Timestamp.Equal(target) {
		t.Errorf("timestamp mismatch: got %v, want %v", got.Timestamp, target)
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries: got %d, want 1", stats.Entries)
	}
	if stats.Hits < 1 {
		t.Errorf("hits: got %d, want >= 1", stats.Hits)
	}
}

func TestRoundToStep(t *testing.T) {
	c, _, _ := testCache(t, 0)

	tests := []struct {
		input    time.Time
		expected time.Time
	}{
		{time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 7, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := c.RoundToStep(tt.input); !got.Equal(tt.expected) {
			t.Errorf("RoundToStep(%v) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestCacheMiss(t *testing.T) {
	c, _, _ := testCache(t, 0)

	if got := c.Get(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)); got != nil {
		t.Fatal("expected nil for cache miss")
	}
	if c.Stats().Misses < 1 {
		t.Errorf("misses: got %d, want >= 1", c.Stats().Misses)
	}
}

func TestEvictExpired(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	cfg.Buffer = 0
	c := NewKeyframeCache(cfg, prop, testLogger())
	ctx := context.Background()
	rev := prop.Clock().Revision()

	past := time.Now().Add(-2 * time.Minute).Truncate(5 * time.Second)
	future := time.Now().Add(time.Minute).Truncate(5 * time.Second)
	for _, ts := range []time.Time{past, future} {
		kf, err := prop.PropagateAt(ctx, ts)
		if err != nil {
			t.Fatalf("PropagateAt failed: %v", err)
		}
		c.insert(rev, kf)
	}
	// A future frame left over from an older timeline.
	orphan, err := prop.PropagateAt(ctx, future.Add(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	c.insert(rev+7, orphan)

	if c.Stats().Entries != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Stats().Entries)
	}
	if removed := c.evictExpired(); removed != 2 {
		t.Errorf("expected 2 evictions, got %d", removed)
	}
	if c.Get(past) != nil {
		t.Error("expected past entry to be evicted")
	}
	if c.Get(future) == nil {
		t.Error("expected future entry to remain")
	}
}

func TestRebuildFillsWindow(t *testing.T) {
	c, _, _ := testCache(t, 15*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.rebuild(ctx)

	if got, want := c.Stats().Entries, 4; got < want {
		t.Errorf("rebuild generated %d entries, expected >= %d", got, want)
	}
	if c.GetLatest() == nil {
		t.Fatal("GetLatest returned nil after rebuild")
	}
	if c.stale() {
		t.Error("stale() true right after rebuild")
	}
}

func TestExtendFillsGaps(t *testing.T) {
	c, _, _ := testCache(t, 10*time.Second)
	ctx := context.Background()
	c.rebuild(ctx)

	c.mu.Lock()
	for k := range c.frames {
		delete(c.frames, k)
	}
	c.mu.Unlock()

	c.extend(ctx)
	if got := c.Stats().Entries; got < 3 {
		t.Errorf("extend restored %d frames, want >= 3", got)
	}
}

func TestDatasetRebuild(t *testing.T) {
	c, _, store := testCache(t, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.rebuild(ctx)
	before := c.Stats().ClockRevision

	halley := catalog.Body{Name: "halley", Kind: catalog.KindNEO, Elements: catalog.Planets()[2].Elements}
	halley.Elements.Eccentricity = 0.967
	halley.Elements.SemiMajorAxisAU = 17.8
	store.Set(catalog.NewDataset("updated", time.Now().Add(time.Second), []catalog.Body{halley}, nil))

	if !c.stale() {
		t.Fatal("expected stale() after dataset update")
	}
	// The old frames keep serving until they are replaced.
	if c.Get(time.Now()) == nil {
		t.Error("previous frames should serve while the catalog rebuild is pending")
	}

	c.rebuild(ctx)
	if c.inGracePeriod.Load() {
		t.Error("grace period should be false after rebuild")
	}
	if c.Stats().ClockRevision != before {
		t.Error("a catalog change must not alter the clock revision")
	}
	frames := c.GetRecent(time.Now().Add(10*time.Second), 3)
	if len(frames) == 0 {
		t.Fatal("no frames after rebuild")
	}
	for _, kf := range frames {
		if len(kf.Bodies) != 10 {
			t.Errorf("keyframe %v has %d bodies, want 10", kf.Timestamp, len(kf.Bodies))
		}
	}
	if c.stale() {
		t.Error("expected stale() false after rebuild")
	}
}

func TestClockChangeHidesOldTimeline(t *testing.T) {
	c, prop, _ := testCache(t, 10*time.Second)
	ctx := context.Background()
	c.rebuild(ctx)

	// The next step stays inside the window across both rebuilds.
	now := c.RoundToStep(time.Now()).Add(5 * time.Second)
	if c.Get(now) == nil {
		t.Fatal("no frame before the clock change")
	}

	clk := prop.Clock()
	clk.SetSpeed(-100)
	if kf := c.Get(now); kf != nil {
		t.Fatalf("served jd %v computed under the previous clock", kf.JulianDate)
	}
	if frames := c.GetRecent(now, 3); len(frames) != 0 {
		t.Fatalf("GetRecent returned %d frames of the previous clock", len(frames))
	}

	c.rebuild(ctx)
	kf := c.Get(now)
	if kf == nil {
		t.Fatal("no frame after rebuild")
	}
	if want := clk.JulianAt(c.RoundToStep(now)); kf.JulianDate != want {
		t.Errorf("jd = %v, want %v under the new speed", kf.JulianDate, want)
	}
	if got := c.Stats().ClockRevision; got != clk.Revision() {
		t.Errorf("stats revision = %d, want %d", got, clk.Revision())
	}
}

func TestPausedClockHoldsOneFrame(t *testing.T) {
	c, prop, _ := testCache(t, 30*time.Second)
	ctx := context.Background()
	c.rebuild(ctx)

	clk := prop.Clock()
	clk.Pause()
	c.tick(ctx)

	stats := c.Stats()
	if !stats.Paused || stats.Entries != 1 {
		t.Fatalf("paused stats = %+v, want one paused entry", stats)
	}

	now := time.Now()
	a, b := c.Get(now), c.Get(now.Add(20*time.Second))
	if a == nil || b == nil {
		t.Fatal("paused frame not served")
	}
	if a.JulianDate != b.JulianDate || a.JulianDate != clk.Now() {
		t.Errorf("paused frames jd %v and %v, want %v", a.JulianDate, b.JulianDate, clk.Now())
	}
	if want := c.RoundToStep(now.Add(20 * time.Second)); !b.Timestamp.Equal(want) {
		t.Errorf("paused frame timestamp = %v, want requested step %v", b.Timestamp, want)
	}
	if n := len(c.GetRecent(now, 5)); n != 1 {
		t.Errorf("paused trail has %d frames, want 1", n)
	}
	if c.GetLatest() == nil {
		t.Error("GetLatest nil while paused")
	}

	// Ticks while paused compute nothing new.
	c.tick(ctx)
	c.tick(ctx)
	if got := c.Stats().Entries; got != 1 {
		t.Errorf("entries after paused ticks = %d, want 1", got)
	}

	clk.Resume()
	if !c.stale() {
		t.Fatal("expected stale() after resume")
	}
	c.tick(ctx)
	if stats := c.Stats(); stats.Paused || stats.Entries < 2 {
		t.Errorf("resumed stats = %+v, want a rolling window", stats)
	}
}

func TestGetLatestEmpty(t *testing.T) {
	c, _, _ := testCache(t, 0)
	if c.GetLatest() != nil {
		t.Fatal("expected nil from empty cache")
	}
}

// TestConcurrentAccess runs readers against the maintenance loop while the
// clock keeps changing.
func TestConcurrentAccess(t *testing.T) {
	c, prop, _ := testCache(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go c.Start(ctx)
	time.Sleep(3 * time.Second)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			for j := 0; j < 100; j++ {
				c.GetLatest()
				c.Get(time.Now())
				c.GetRecent(time.Now(), 4)
				c.Stats()
				if i == 0 && j%25 == 0 {
					prop.Clock().Faster()
				}
			}
			done <- struct{}{}
		}(i)
	}

	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			t.Fatal("timeout waiting for concurrent reads")
		}
	}
}

func TestSizeEstimation(t *testing.T) {
	c, _, _ := testCache(t, 10*time.Second)
	c.rebuild(context.Background())

	stats := c.Stats()
	if stats.SizeBytes <= 0 {
		t.Errorf("expected positive size estimate, got %d", stats.SizeBytes)
	}
	// Nine bodies across three frames stays well under 10KB.
	if stats.SizeBytes > 10000 {
		t.Errorf("size estimate seems too large for 9 bodies: %d bytes", stats.SizeBytes)
	}
}
