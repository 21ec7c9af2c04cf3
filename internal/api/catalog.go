package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
)

type catalogMetadata struct {
	Source       string               `json:"source"`
	FetchedAt    time.Time            `json:"fetched_at"`
	AgeSeconds   int                  `json:"age_seconds"`
	BodyCount    int                  `json:"body_count"`
	Counts       map[catalog.Kind]int `json:"counts"`
	FetchEnabled bool                 `json:"fetch_enabled"`
}

func metadataFor(ds *catalog.Dataset, refresher *catalog.Refresher) catalogMetadata {
	return catalogMetadata{
		Source:       ds.Source,
		FetchedAt:    ds.FetchedAt.UTC(),
		AgeSeconds:   int(time.Since(ds.FetchedAt).Seconds()),
		BodyCount:    len(ds.Bodies),
		Counts:       ds.CountByKind(),
		FetchEnabled: refresher != nil && refresher.FetchEnabled(),
	}
}

// catalogMetadataHandler describes the current dataset.
// GET /api/v1/catalog/metadata
func catalogMetadataHandler(store *catalog.Store, refresher *catalog.Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			writeDomainError(w, catalog.ErrNoDataset)
			return
		}
		writeJSON(w, http.StatusOK, metadataFor(ds, refresher))
	}
}

// catalogFetchHandler refreshes the NEO catalog from its source now.
// POST /api/v1/catalog/fetch
func catalogFetchHandler(logger *slog.Logger, refresher *catalog.Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if refresher == nil || !refresher.FetchEnabled() {
			writeError(w, http.StatusServiceUnavailable, catalog.ErrFetchDisabled.Error())
			return
		}

		ds, err := refresher.Refresh(r.Context())
		if err != nil {
			logger.Warn("catalog fetch failed", "error", err)
			status := http.StatusBadGateway
			if errors.Is(err, catalog.ErrFetchDisabled) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, metadataFor(ds, refresher))
	}
}

// cacheStatsHandler reports keyframe cache statistics.
// GET /api/v1/cache/stats
func cacheStatsHandler(kfCache *cache.KeyframeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if kfCache == nil {
			writeError(w, http.StatusServiceUnavailable, "keyframe cache disabled")
			return
		}
		writeJSON(w, http.StatusOK, kfCache.Stats())
	}
}

// latestKeyframeHandler returns the newest cached keyframe at or before now.
// GET /api/v1/cache/keyframes/latest
func latestKeyframeHandler(kfCache *cache.KeyframeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if kfCache == nil {
			writeError(w, http.StatusServiceUnavailable, "keyframe cache disabled")
			return
		}
		kf := kfCache.GetLatest()
		if kf == nil {
			writeError(w, http.StatusServiceUnavailable, "no keyframe cached yet")
			return
		}
		writeJSON(w, http.StatusOK, kf)
	}
}
