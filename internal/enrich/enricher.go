package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transitmap/internal/cache"
	"transitmap/internal/domain"
)

// Enricher replaces a route's approximate polyline with precise geometry
// from an external source when a single route is selected. It is strictly
// best-effort: any failure leaves the caller on the approximate polyline
// with no user-visible error.
//
// Selections can change while a fetch is in flight. There is no
// cancellation; instead each request remembers the route id that was
// current when it started, and a result arriving for a route that is no
// longer selected is discarded rather than applied.
type Enricher struct {
	relations *RelationClient
	router    *RouterClient
	sidecar   Sidecar
	cache     *cache.RedisCache
	cacheTTL  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	current string
}

func New(relations *RelationClient, router *RouterClient, sidecar Sidecar, redisCache *cache.RedisCache, cacheTTL time.Duration, logger *slog.Logger) *Enricher {
	return &Enricher{
		relations: relations,
		router:    router,
		sidecar:   sidecar,
		cache:     redisCache,
		cacheTTL:  cacheTTL,
		logger:    logger.With("component", "enricher"),
	}
}

// Select records the currently selected route. Results of fetches started
// under an older selection will be discarded.
func (e *Enricher) Select(routeID string) {
	e.mu.Lock()
	e.current = routeID
	e.mu.Unlock()
}

func (e *Enricher) selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Enrich fetches precise geometry for the route: the curated relation when
// the sidecar knows one for the route's display name, otherwise a routed
// path through the ordered stop waypoints. The second return value is
// false when no enriched geometry should be applied, for any reason; the
// caller keeps the approximate polyline.
func (e *Enricher) Enrich(ctx context.Context, route *domain.Route, orderedStops []*domain.Stop) (*Geometry, bool) {
	if route == nil {
		return nil, false
	}
	requested := route.ID
	e.Select(requested)

	if geom, ok := e.fromCache(ctx, requested); ok {
		return e.applyIfCurrent(requested, geom, "cache")
	}

	geom := e.fetch(ctx, route, orderedStops)
	if geom == nil {
		return nil, false
	}

	e.toCache(ctx, requested, geom)
	return e.applyIfCurrent(requested, geom, "fetch")
}

func (e *Enricher) fetch(ctx context.Context, route *domain.Route, orderedStops []*domain.Stop) *Geometry {
	name := route.DisplayName()

	if relationID, ok := e.sidecar.Lookup(name); ok && e.relations != nil {
		// Relation geometry depends only on the relation id, not on the
		// feed, so it lives under its own key and survives the per-route
		// invalidation on feed reloads.
		if geom, ok := e.relationFromCache(ctx, relationID); ok {
			return geom
		}

		geom, err := e.relations.Fetch(ctx, relationID)
		if err == nil {
			e.logger.Debug("relation geometry fetched", "route_id", route.ID, "relation_id", relationID, "lines", len(geom.Lines))
			e.relationToCache(ctx, relationID, geom)
			return geom
		}
		e.logger.Warn("relation fetch failed, falling back to approximate polyline",
			"route_id", route.ID, "relation_id", relationID, "error", err)
		return nil
	}

	if e.router == nil || len(orderedStops) < 2 {
		return nil
	}

	waypoints := make([]LatLon, 0, len(orderedStops))
	for _, s := range orderedStops {
		waypoints = append(waypoints, LatLon{Lat: s.Lat, Lon: s.Lon})
	}

	geom, err := e.router.Route(ctx, waypoints)
	if err != nil {
		e.logger.Warn("routing request failed, falling back to approximate polyline",
			"route_id", route.ID, "waypoints", len(waypoints), "error", err)
		return nil
	}
	e.logger.Debug("routed geometry fetched", "route_id", route.ID, "waypoints", len(waypoints))
	return geom
}

// applyIfCurrent implements the stale-response guard.
func (e *Enricher) applyIfCurrent(requested string, geom *Geometry, source string) (*Geometry, bool) {
	if e.selected() != requested {
		e.logger.Debug("discarding stale enrichment result", "route_id", requested, "source", source)
		return nil, false
	}
	return geom, true
}

func (e *Enricher) fromCache(ctx context.Context, routeID string) (*Geometry, bool) {
	if e.cache == nil {
		return nil, false
	}
	var geom Geometry
	found, err := e.cache.GetJSON(ctx, cache.KeyRoutedPath(routeID), &geom)
	if err != nil || !found || len(geom.Lines) == 0 {
		return nil, false
	}
	return &geom, true
}

func (e *Enricher) relationFromCache(ctx context.Context, relationID int64) (*Geometry, bool) {
	if e.cache == nil {
		return nil, false
	}
	var geom Geometry
	found, err := e.cache.GetJSON(ctx, cache.KeyRelationGeometry(relationID), &geom)
	if err != nil || !found || len(geom.Lines) == 0 {
		return nil, false
	}
	return &geom, true
}

func (e *Enricher) relationToCache(ctx context.Context, relationID int64, geom *Geometry) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetJSON(ctx, cache.KeyRelationGeometry(relationID), geom, e.cacheTTL); err != nil {
		e.logger.Debug("failed to cache relation geometry", "relation_id", relationID, "error", err)
	}
}

func (e *Enricher) toCache(ctx context.Context, routeID string, geom *Geometry) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetJSON(ctx, cache.KeyRoutedPath(routeID), geom, e.cacheTTL); err != nil {
		e.logger.Debug("failed to cache enriched geometry", "route_id", routeID, "error", err)
	}
}
