package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transitmap/internal/config"
	"transitmap/internal/join"
	"transitmap/internal/store"
	"transitmap/pkg/feed"
)

// Ingestor loads the feed at startup and re-loads it on an interval. All
// parsing and joining happens off the request path; the store swap is the
// only moment readers notice.
type Ingestor struct {
	manifest       *config.Manifest
	downloader     *feed.Downloader
	store          *store.Store
	updateInterval time.Duration
	logger         *slog.Logger
	onUpdate       func(context.Context)

	ready   bool
	readyMu sync.RWMutex
}

func New(manifest *config.Manifest, st *store.Store, updateInterval time.Duration, logger *slog.Logger) *Ingestor {
	ing := &Ingestor{
		manifest:       manifest,
		store:          st,
		updateInterval: updateInterval,
		logger:         logger.With("component", "feed_ingestor"),
	}
	if manifest.Feed.URL != "" {
		ing.downloader = feed.NewDownloader(manifest.Feed.URL, logger)
	}
	return ing
}

func (i *Ingestor) Start(ctx context.Context) {
	i.update(ctx)

	ticker := time.NewTicker(i.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.update(ctx)
		}
	}
}

func (i *Ingestor) update(ctx context.Context) {
	i.logger.Info("starting feed update")
	start := time.Now()

	ds, err := i.load(ctx)
	if err != nil {
		i.logger.Error("feed load failed", "error", err)
		return
	}

	joinStart := time.Now()
	joins := join.BuildAll(ds)
	joinDuration := time.Since(joinStart)

	i.store.UpdateAll(ds, joins)

	if !i.IsReady() {
		i.setReady(true)
	}

	if i.onUpdate != nil {
		i.onUpdate(ctx)
	}

	i.logger.Info("feed update completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"join_duration_ms", joinDuration.Milliseconds(),
		"stops", len(ds.Stops),
		"dropped_stops", ds.DroppedStops,
		"shapes", len(ds.Shapes),
		"routes", len(ds.Routes),
		"trips", len(ds.Trips),
		"associated_stops", len(joins.StopAssoc.RouteIDs),
	)
}

func (i *Ingestor) load(ctx context.Context) (*feed.Dataset, error) {
	if i.downloader == nil {
		start := time.Now()
		tables, err := feed.LoadDir(i.manifest.Feed.Dir)
		if err != nil {
			return nil, err
		}
		ds := feed.Build(tables)
		i.logger.Info("feed loaded from directory",
			"dir", i.manifest.Feed.Dir,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return ds, nil
	}

	reader, data, err := i.downloader.Download(ctx)
	if err != nil {
		return nil, err
	}

	cacheDir := feed.CacheDir()
	fingerprint := feed.Fingerprint(data)

	ds, cachePath, cacheErr := feed.LoadCached(cacheDir, fingerprint)
	if cacheErr == nil {
		i.logger.Info("loaded built feed cache", "path", cachePath)
		return ds, nil
	}

	i.logger.Info("built feed cache miss, parsing archive", "path", cachePath, "error", cacheErr)

	tables, err := feed.LoadZip(reader)
	if err != nil {
		return nil, err
	}
	ds = feed.Build(tables)

	if savedPath, saveErr := feed.SaveCached(cacheDir, fingerprint, ds); saveErr != nil {
		i.logger.Warn("failed to persist built feed cache", "error", saveErr)
	} else {
		i.logger.Info("persisted built feed cache", "path", savedPath)
	}
	return ds, nil
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *Ingestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}

// SetOnUpdate registers a callback invoked after every successful ingest,
// used for cache warming and client notification.
func (i *Ingestor) SetOnUpdate(fn func(context.Context)) {
	i.onUpdate = fn
}
