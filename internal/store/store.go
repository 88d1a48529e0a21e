package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"transitmap/internal/domain"
	"transitmap/internal/join"
	"transitmap/pkg/feed"
)

// Store holds the current feed dataset and its derived joins. Writers swap
// whole snapshots under the lock; readers get copies of entities and shared
// references to the derived joins, which are immutable once built.
type Store struct {
	mu    sync.RWMutex
	ds    *feed.Dataset
	joins *join.Result

	routesByName map[string]*domain.Route
	routeShapes  map[string][]string
	routeStops   map[string][]string

	lastUpdate time.Time
}

func New() *Store {
	return &Store{
		ds:           &feed.Dataset{},
		joins:        &join.Result{},
		routesByName: make(map[string]*domain.Route),
		routeShapes:  make(map[string][]string),
		routeStops:   make(map[string][]string),
	}
}

// UpdateAll swaps in a freshly built dataset and its joins.
func (s *Store) UpdateAll(ds *feed.Dataset, joins *join.Result) {
	byName := make(map[string]*domain.Route, len(ds.Routes))
	for _, r := range ds.Routes {
		byName[r.DisplayName()] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ds = ds
	s.joins = joins
	s.routesByName = byName
	s.routeShapes = buildRouteShapes(ds.Trips)
	s.routeStops = buildRouteStops(ds, joins)
	s.lastUpdate = time.Now()
}

func (s *Store) GetAllStops() []*domain.Stop {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Stop, 0, len(s.ds.Stops))
	for _, stop := range s.ds.Stops {
		copy := *stop
		result = append(result, &copy)
	}
	return result
}

func (s *Store) GetStopByID(id string) (*domain.Stop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stop, ok := s.ds.Stops[id]
	if !ok {
		return nil, false
	}
	copy := *stop
	return &copy, true
}

// StopsSnapshot returns a copy of the stop map for filter evaluation.
func (s *Store) StopsSnapshot() map[string]*domain.Stop {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.Stop, len(s.ds.Stops))
	for id, stop := range s.ds.Stops {
		copy := *stop
		result[id] = &copy
	}
	return result
}

func (s *Store) GetAllRoutes() []*domain.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Route, 0, len(s.ds.Routes))
	for _, route := range s.ds.Routes {
		copy := *route
		result = append(result, &copy)
	}
	return result
}

func (s *Store) GetRouteByID(id string) (*domain.Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route, ok := s.ds.Routes[id]
	if !ok {
		return nil, false
	}
	copy := *route
	return &copy, true
}

func (s *Store) GetRouteByName(name string) (*domain.Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route, ok := s.routesByName[name]
	if !ok {
		return nil, false
	}
	copy := *route
	return &copy, true
}

// RouteNames returns the deduplicated, alphabetically sorted display names
// of every route, for populating a route picker.
func (s *Store) RouteNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.ds.Routes))
	names := make([]string, 0, len(s.ds.Routes))
	for _, r := range s.ds.Routes {
		name := r.DisplayName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) GetRouteShapes(routeID string) []*domain.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shapeIDs, ok := s.routeShapes[routeID]
	if !ok {
		return nil
	}

	result := make([]*domain.Shape, 0, len(shapeIDs))
	for _, shapeID := range shapeIDs {
		if shape, ok := s.ds.Shapes[shapeID]; ok {
			shapeCopy := &domain.Shape{
				ID:     shape.ID,
				Points: make([]domain.ShapePoint, len(shape.Points)),
			}
			copy(shapeCopy.Points, shape.Points)
			result = append(result, shapeCopy)
		}
	}
	return result
}

// RouteOrderedStops returns the route's stops in travel order: the explicit
// ordering when the feed ships one, otherwise the proximity-associated
// stops ordered by their nearest vertex along the route's first shape.
func (s *Store) RouteOrderedStops(routeID string) []*domain.Stop {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stopIDs, ok := s.routeStops[routeID]
	if !ok {
		return nil
	}

	result := make([]*domain.Stop, 0, len(stopIDs))
	for _, id := range stopIDs {
		if stop, ok := s.ds.Stops[id]; ok {
			copy := *stop
			result = append(result, &copy)
		}
	}
	return result
}

// Joins returns the derived joins of the current dataset. The result is
// shared, not copied: joins are pure functions of the loaded feed and are
// never mutated after construction.
func (s *Store) Joins() *join.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joins
}

type Stats struct {
	RoutesCount     int       `json:"routes_count"`
	ShapesCount     int       `json:"shapes_count"`
	StopsCount      int       `json:"stops_count"`
	TripsCount      int       `json:"trips_count"`
	DroppedStops    int       `json:"dropped_stops"`
	AssociatedStops int       `json:"associated_stops"`
	LastUpdate      time.Time `json:"last_update"`
	IsLoaded        bool      `json:"is_loaded"`
}

func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		RoutesCount:     len(s.ds.Routes),
		ShapesCount:     len(s.ds.Shapes),
		StopsCount:      len(s.ds.Stops),
		TripsCount:      len(s.ds.Trips),
		DroppedStops:    s.ds.DroppedStops,
		AssociatedStops: len(s.joins.StopAssoc.RouteIDs),
		LastUpdate:      s.lastUpdate,
		IsLoaded:        !s.lastUpdate.IsZero(),
	}
}

// buildRouteShapes derives route→shape ids from trips with first-seen
// dedup, preserving trip file order.
func buildRouteShapes(trips []*domain.Trip) map[string][]string {
	seen := make(map[string]map[string]bool)
	result := make(map[string][]string)

	for _, t := range trips {
		if t.RouteID == "" || t.ShapeID == "" {
			continue
		}
		if seen[t.RouteID] == nil {
			seen[t.RouteID] = make(map[string]bool)
		}
		if !seen[t.RouteID][t.ShapeID] {
			seen[t.RouteID][t.ShapeID] = true
			result[t.RouteID] = append(result[t.RouteID], t.ShapeID)
		}
	}
	return result
}

// buildRouteStops inverts the stop→route association into ordered per-route
// stop lists.
func buildRouteStops(ds *feed.Dataset, joins *join.Result) map[string][]string {
	result := make(map[string][]string)

	if len(ds.Ordering) > 0 {
		for routeID, stopIDs := range ds.Ordering {
			kept := make([]string, 0, len(stopIDs))
			for _, id := range stopIDs {
				if _, ok := ds.Stops[id]; ok {
					kept = append(kept, id)
				}
			}
			result[routeID] = kept
		}
		return result
	}

	routeShapes := buildRouteShapes(ds.Trips)
	inverse := make(map[string][]string)
	for stopID, routeIDs := range joins.StopAssoc.RouteIDs {
		for _, routeID := range routeIDs {
			inverse[routeID] = append(inverse[routeID], stopID)
		}
	}

	for routeID, stopIDs := range inverse {
		var shape *domain.Shape
		if ids := routeShapes[routeID]; len(ids) > 0 {
			shape = ds.Shapes[ids[0]]
		}
		sortAlongShape(stopIDs, ds.Stops, shape)
		result[routeID] = stopIDs
	}
	return result
}

// sortAlongShape orders stop ids by the index of their nearest shape
// vertex, falling back to id order when no shape is available. Ties break
// by id so the order is deterministic.
func sortAlongShape(stopIDs []string, stops map[string]*domain.Stop, shape *domain.Shape) {
	if shape == nil || len(shape.Points) == 0 {
		sort.Strings(stopIDs)
		return
	}

	nearest := make(map[string]int, len(stopIDs))
	for _, id := range stopIDs {
		stop, ok := stops[id]
		if !ok {
			nearest[id] = math.MaxInt
			continue
		}
		nearest[id] = nearestVertex(stop, shape.Points)
	}

	sort.Slice(stopIDs, func(i, j int) bool {
		a, b := stopIDs[i], stopIDs[j]
		if nearest[a] != nearest[b] {
			return nearest[a] < nearest[b]
		}
		return a < b
	})
}

func nearestVertex(stop *domain.Stop, points []domain.ShapePoint) int {
	best := 0
	bestDist := math.Inf(1)
	cosLat := math.Cos(stop.Lat * math.Pi / 180)
	for i, pt := range points {
		dLat := pt.Lat - stop.Lat
		dLon := (pt.Lon - stop.Lon) * cosLat
		d := dLat*dLat + dLon*dLon
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
