package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"transitmap/internal/cache"
	"transitmap/internal/cluster"
	"transitmap/internal/domain"
	"transitmap/internal/enrich"
	"transitmap/internal/filter"
	"transitmap/internal/store"
)

// MapHandler serves the map data API: stops, routes, shapes, clusters and
// enriched geometry.
type MapHandler struct {
	store      *store.Store
	cache      *cache.RedisCache
	enricher   *enrich.Enricher
	cellSizePx int
	logger     *slog.Logger
}

func NewMapHandler(st *store.Store, redisCache *cache.RedisCache, enricher *enrich.Enricher, cellSizePx int, logger *slog.Logger) *MapHandler {
	return &MapHandler{
		store:      st,
		cache:      redisCache,
		enricher:   enricher,
		cellSizePx: cellSizePx,
		logger:     logger.With("handler", "map"),
	}
}

type RoutesResponse struct {
	Routes     []*domain.Route `json:"routes"`
	Count      int             `json:"count"`
	ServerTime time.Time       `json:"server_time"`
}

func (h *MapHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.store.GetAllRoutes()
	respondJSON(w, http.StatusOK, RoutesResponse{
		Routes:     routes,
		Count:      len(routes),
		ServerTime: serverTime(),
	})
}

type RouteNamesResponse struct {
	Names      []string  `json:"names"`
	Count      int       `json:"count"`
	ServerTime time.Time `json:"server_time"`
}

// ListRouteNames feeds the route picker: deduplicated display names,
// alphabetically sorted.
func (h *MapHandler) ListRouteNames(w http.ResponseWriter, r *http.Request) {
	names := h.store.RouteNames()
	respondJSON(w, http.StatusOK, RouteNamesResponse{
		Names:      names,
		Count:      len(names),
		ServerTime: serverTime(),
	})
}

func (h *MapHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing route name")
		return
	}

	route, ok := h.store.GetRouteByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "route not found")
		return
	}
	respondJSON(w, http.StatusOK, route)
}

type ShapesResponse struct {
	Shapes     []*domain.Shape `json:"shapes"`
	Count      int             `json:"count"`
	ServerTime time.Time       `json:"server_time"`
}

func (h *MapHandler) GetRouteShape(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	route, ok := h.store.GetRouteByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "route not found")
		return
	}

	shapes := h.store.GetRouteShapes(route.ID)
	respondJSON(w, http.StatusOK, ShapesResponse{
		Shapes:     shapes,
		Count:      len(shapes),
		ServerTime: serverTime(),
	})
}

type GeometryResponse struct {
	RouteID    string            `json:"route_id"`
	Source     string            `json:"source"`
	Lines      [][]enrich.LatLon `json:"lines"`
	ServerTime time.Time         `json:"server_time"`
}

// GetRouteGeometry returns the best available geometry for a selected
// route: enriched when an external source delivers, the approximate shape
// polyline otherwise. Enrichment failure is invisible here by design; the
// response only gets a different source tag.
func (h *MapHandler) GetRouteGeometry(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	route, ok := h.store.GetRouteByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "route not found")
		return
	}

	if h.enricher != nil {
		orderedStops := h.store.RouteOrderedStops(route.ID)
		if geom, ok := h.enricher.Enrich(r.Context(), route, orderedStops); ok {
			respondJSON(w, http.StatusOK, GeometryResponse{
				RouteID:    route.ID,
				Source:     "enriched",
				Lines:      geom.Lines,
				ServerTime: serverTime(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, GeometryResponse{
		RouteID:    route.ID,
		Source:     "approximate",
		Lines:      approximateLines(h.store.GetRouteShapes(route.ID)),
		ServerTime: serverTime(),
	})
}

func approximateLines(shapes []*domain.Shape) [][]enrich.LatLon {
	lines := make([][]enrich.LatLon, 0, len(shapes))
	for _, s := range shapes {
		line := make([]enrich.LatLon, 0, len(s.Points))
		for _, pt := range s.Points {
			line = append(line, enrich.LatLon{Lat: pt.Lat, Lon: pt.Lon})
		}
		lines = append(lines, line)
	}
	return lines
}

type RouteStopsResponse struct {
	Stops      []*domain.Stop `json:"stops"`
	Count      int            `json:"count"`
	ServerTime time.Time      `json:"server_time"`
}

func (h *MapHandler) GetRouteStops(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	route, ok := h.store.GetRouteByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "route not found")
		return
	}

	stops := h.store.RouteOrderedStops(route.ID)
	respondJSON(w, http.StatusOK, RouteStopsResponse{
		Stops:      stops,
		Count:      len(stops),
		ServerTime: serverTime(),
	})
}

type StopsResponse struct {
	Stops      []*domain.Stop `json:"stops"`
	Count      int            `json:"count"`
	ServerTime time.Time      `json:"server_time"`
}

// ListStops returns the stops passing the filter state in the query.
func (h *MapHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	state := filterFromQuery(r)
	stops := filteredStops(h.store, state)

	h.logger.Debug("ListStops response",
		"count", len(stops),
		"filtered", state != (filter.State{}),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, StopsResponse{
		Stops:      stops,
		Count:      len(stops),
		ServerTime: serverTime(),
	})
}

func (h *MapHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing stop id")
		return
	}

	stop, ok := h.store.GetStopByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}
	respondJSON(w, http.StatusOK, stop)
}

type StopRoutesResponse struct {
	StopID     string    `json:"stop_id"`
	RouteIDs   []string  `json:"route_ids"`
	RouteNames []string  `json:"route_names"`
	ServerTime time.Time `json:"server_time"`
}

func (h *MapHandler) GetStopRoutes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.store.GetStopByID(id); !ok {
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}

	joins := h.store.Joins()
	respondJSON(w, http.StatusOK, StopRoutesResponse{
		StopID:     id,
		RouteIDs:   joins.StopAssoc.RouteIDs[id],
		RouteNames: joins.StopAssoc.RouteNames[id],
		ServerTime: serverTime(),
	})
}

type ClustersResponse struct {
	Clusters   []domain.Cluster `json:"clusters"`
	Count      int              `json:"count"`
	ServerTime time.Time        `json:"server_time"`
}

// GetClusters buckets the filtered stops into the screen-space grid for
// the viewport in the query.
func (h *MapHandler) GetClusters(w http.ResponseWriter, r *http.Request) {
	vp, err := viewportFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid viewport: need centerLat, centerLon, zoom, width, height")
		return
	}

	cellSize := h.cellSizePx
	if v := r.URL.Query().Get("cell"); v != "" {
		if parsed, err := parsePositiveInt(v); err == nil {
			cellSize = parsed
		}
	}

	clusters := computeClusters(h.store, filterFromQuery(r), vp, cellSize)
	respondJSON(w, http.StatusOK, ClustersResponse{
		Clusters:   clusters,
		Count:      len(clusters),
		ServerTime: serverTime(),
	})
}

type FitResponse struct {
	Bounds     domain.BoundingBox `json:"bounds"`
	Count      int                `json:"count"`
	ServerTime time.Time          `json:"server_time"`
}

// FitCluster returns the padded bounds enclosing the given stops, used
// when a multi-member cluster badge is activated.
func (h *MapHandler) FitCluster(w http.ResponseWriter, r *http.Request) {
	ids := splitCSV(r.URL.Query().Get("stops"))
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "missing stops parameter")
		return
	}

	stops := make([]*domain.Stop, 0, len(ids))
	for _, id := range ids {
		if stop, ok := h.store.GetStopByID(id); ok {
			stops = append(stops, stop)
		}
	}

	bounds, ok := cluster.FitBounds(stops)
	if !ok {
		respondError(w, http.StatusNotFound, "no known stops in request")
		return
	}

	respondJSON(w, http.StatusOK, FitResponse{
		Bounds:     bounds,
		Count:      len(stops),
		ServerTime: serverTime(),
	})
}

func (h *MapHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.GetStats())
}

// GetSync returns the full bootstrap payload with an ETag derived from the
// feed load time, so unchanged data costs clients one conditional request.
func (h *MapHandler) GetSync(w http.ResponseWriter, r *http.Request) {
	stats := h.store.GetStats()
	if !stats.IsLoaded {
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "feed data is loading, please retry")
		return
	}

	etag := fmt.Sprintf(`"%x"`, stats.LastUpdate.Unix())
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if h.cache != nil {
		var syncData cache.SyncData
		found, err := h.cache.GetJSONCompressed(r.Context(), cache.KeySyncFull, &syncData)
		if err == nil && found {
			respondJSON(w, http.StatusOK, syncData)
			return
		}
	}

	respondJSON(w, http.StatusOK, cache.SyncData{
		Routes:      h.store.GetAllRoutes(),
		Stops:       h.store.GetAllStops(),
		RouteNames:  h.store.RouteNames(),
		Version:     stats.LastUpdate.Format(time.RFC3339),
		GeneratedAt: time.Now(),
	})
}
