package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/orrery/internal/metrics"
)

// ErrFetchDisabled is returned by Refresh when no fetcher is configured.
var ErrFetchDisabled = errors.New("catalog fetching is disabled")

// Refresher keeps the store's dataset current: it seeds the store from the
// built-in bodies and the newest disk cache, then replaces the dataset on
// every successful fetch.
type Refresher struct {
	store     *Store
	fetcher   *Fetcher // nil disables fetching
	cache     *Cache   // nil disables the disk cache
	limit     int
	overrides []Body
	logger    *slog.Logger
}

// NewRefresher creates a Refresher. fetcher and cache may be nil.
func NewRefresher(store *Store, fetcher *Fetcher, cache *Cache, limit int, overrides []Body, logger *slog.Logger) *Refresher {
	return &Refresher{
		store:     store,
		fetcher:   fetcher,
		cache:     cache,
		limit:     limit,
		overrides: overrides,
		logger:    logger,
	}
}

// FetchEnabled reports whether Refresh can fetch.
func (r *Refresher) FetchEnabled() bool {
	return r.fetcher != nil
}

// Bootstrap publishes a dataset of the built-in bodies plus any cached NEO
// records, so the service is ready before the first fetch completes.
func (r *Refresher) Bootstrap() *Dataset {
	source := "builtin"
	fetchedAt := time.Now()
	var neos []Body

	if r.cache != nil {
		data, ts, err := r.cache.LoadLatest()
		switch {
		case errors.Is(err, ErrCacheEmpty):
			r.logger.Info("no NEO cache found, starting with built-in bodies")
		case err != nil:
			r.logger.Warn("failed to read NEO cache", "dir", r.cache.Dir(), "error", err)
		default:
			parsed, err := ParseNEO(bytes.NewReader(data), r.limit, r.logger)
			if err != nil {
				r.logger.Warn("failed to parse cached NEO data", "error", err)
				break
			}
			neos, source, fetchedAt = parsed, "cache", ts
			r.logger.Info("loaded NEO data from cache", "count", len(parsed), "cached_at", ts.Format(time.RFC3339))
		}
	}

	ds := r.compose(source, fetchedAt, neos)
	r.publish(ds)
	return ds
}

// Refresh fetches the NEO catalog, writes the raw response to the disk cache,
// and publishes a new dataset. Concurrent calls are serialized.
func (r *Refresher) Refresh(ctx context.Context) (*Dataset, error) {
	if r.fetcher == nil {
		return nil, ErrFetchDisabled
	}

	r.store.Lock()
	defer r.store.Unlock()

	start := time.Now()
	data, err := r.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncCatalogFetch(false)
		return nil, fmt.Errorf("fetching NEO catalog: %w", err)
	}

	neos, err := ParseNEO(bytes.NewReader(data), r.limit, r.logger)
	if err != nil {
		metrics.IncCatalogFetch(false)
		return nil, err
	}

	now := time.Now()
	if r.cache != nil {
		if err := r.cache.Write(data, now); err != nil {
			r.logger.Warn("failed to write NEO cache", "dir", r.cache.Dir(), "error", err)
		}
	}

	ds := r.compose(r.fetcher.SourceURL(), now, neos)
	r.publish(ds)
	metrics.IncCatalogFetch(true)

	r.logger.Info("catalog refreshed",
		"source", ds.Source,
		"neo_count", len(neos),
		"body_count", len(ds.Bodies),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

func (r *Refresher) compose(source string, fetchedAt time.Time, neos []Body) *Dataset {
	neos, dropped := withoutBuiltins(neos)
	for _, name := range dropped {
		r.logger.Warn("skipping NEO named like a built-in body", "name", name, "source", source)
	}
	return NewDataset(source, fetchedAt, neos, r.overrides)
}

// Run refreshes every interval and keeps the catalog age gauge current until
// ctx is cancelled. An interval ≤ 0 disables periodic fetching.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval > 0 && r.fetcher != nil {
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Warn("initial catalog fetch failed", "error", err)
		}
	}

	var fetchC <-chan time.Time
	if interval > 0 && r.fetcher != nil {
		fetchTicker := time.NewTicker(interval)
		defer fetchTicker.Stop()
		fetchC = fetchTicker.C
	}

	ageTicker := time.NewTicker(10 * time.Second)
	defer ageTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fetchC:
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Warn("catalog refresh failed", "error", err)
			}
		case <-ageTicker.C:
			if age := r.store.AgeSeconds(); age >= 0 {
				metrics.SetCatalogAge(age)
			}
		}
	}
}

func (r *Refresher) publish(ds *Dataset) {
	r.store.Set(ds)

	counts := make(map[string]int)
	for kind, n := range ds.CountByKind() {
		counts[string(kind)] = n
	}
	metrics.SetCatalogBodies(counts)
	metrics.SetCatalogAge(time.Since(ds.FetchedAt).Seconds())
}
