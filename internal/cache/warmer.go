package cache

import (
	"context"
	"log/slog"
	"time"

	"transitmap/internal/domain"
	"transitmap/internal/store"
)

// Warmer pre-populates the cache with the full sync payload after each
// feed ingest, so the first map client does not pay for serialization.
type Warmer struct {
	cache  *RedisCache
	store  *store.Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewWarmer(cache *RedisCache, store *store.Store, ttl time.Duration, logger *slog.Logger) *Warmer {
	return &Warmer{
		cache:  cache,
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "cache_warmer"),
	}
}

// SyncData is the one-shot payload a map client needs to render the base
// view: every route, every stop, and the picker's sorted route names.
type SyncData struct {
	Routes      []*domain.Route `json:"routes"`
	Stops       []*domain.Stop  `json:"stops"`
	RouteNames  []string        `json:"route_names"`
	Version     string          `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func (w *Warmer) BuildSyncData() *SyncData {
	stats := w.store.GetStats()
	return &SyncData{
		Routes:      w.store.GetAllRoutes(),
		Stops:       w.store.GetAllStops(),
		RouteNames:  w.store.RouteNames(),
		Version:     stats.LastUpdate.Format("2006-01-02T15:04:05Z07:00"),
		GeneratedAt: time.Now(),
	}
}

// WarmAll refreshes the sync payload and drops stale enrichment
// geometries. Failures are logged and otherwise ignored; the cache is an
// optimization, never a dependency.
func (w *Warmer) WarmAll(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("starting cache warming")

	syncData := w.BuildSyncData()
	if err := w.cache.SetJSONCompressed(ctx, KeySyncFull, syncData, w.ttl); err != nil {
		w.logger.Error("failed to warm sync data", "error", err)
	}

	if err := w.cache.SetJSON(ctx, KeyFeedVersion, syncData.Version, w.ttl); err != nil {
		w.logger.Error("failed to warm feed version", "error", err)
	}

	if err := w.cache.DeletePattern(ctx, PatternEnrichment); err != nil {
		w.logger.Error("failed to invalidate enrichment geometries", "error", err)
	}

	w.logger.Info("cache warming completed",
		"routes", len(syncData.Routes),
		"stops", len(syncData.Stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
