package join

import (
	"sort"

	"github.com/golang/geo/s2"

	"transitmap/internal/domain"
	"transitmap/internal/geo"
	"transitmap/pkg/feed"
)

// ProximityThresholdMeters is the inclusive distance under which a stop is
// associated with a route's shape.
const ProximityThresholdMeters = 80.0

// S2 cells at this level have edges near a kilometer, far wider than the
// proximity threshold, so one ring of neighbors is a safe candidate guard
// band around any sampled point of a shape.
const s2Level = 13

// Segments are sampled at this spacing when collecting candidate cells.
// It must stay well under the level-13 cell edge so no point of a segment
// is ever farther than a cell from the nearest sample.
const segmentSampleMeters = 500.0

// Styles holds the two per-route lookup maps the renderer needs. They are
// siblings produced by one pass over the routes table; returning them as
// named fields keeps them an explicit pair.
type Styles struct {
	Colors map[string]string
	Names  map[string]string
}

// RouteStyles builds the color and display-name maps for all routes.
func RouteStyles(routes map[string]*domain.Route) Styles {
	s := Styles{
		Colors: make(map[string]string, len(routes)),
		Names:  make(map[string]string, len(routes)),
	}
	for id, r := range routes {
		s.Colors[id] = r.Color
		s.Names[id] = r.DisplayName()
	}
	return s
}

// ShapeRoutes maps each shape id to the route of the first trip that
// references it. Trips are in file order, so the mapping is deterministic
// for a given feed. Trips missing either id are skipped.
func ShapeRoutes(trips []*domain.Trip) map[string]string {
	m := make(map[string]string)
	for _, t := range trips {
		if t.ShapeID == "" || t.RouteID == "" {
			continue
		}
		if _, seen := m[t.ShapeID]; !seen {
			m[t.ShapeID] = t.RouteID
		}
	}
	return m
}

// AccessibleRoutes returns the set of routes with at least one trip marked
// wheelchair accessible. A route absent from the map has no evidence of
// accessibility; consumers treat absence as not accessible.
func AccessibleRoutes(trips []*domain.Trip) map[string]bool {
	m := make(map[string]bool)
	for _, t := range trips {
		if t.RouteID != "" && t.WheelchairAccessible == domain.AccessibilityYes {
			m[t.RouteID] = true
		}
	}
	return m
}

// Association maps each stop id to the routes serving it, both by route id
// and by display name. Slices are sorted, so repeated joins over the same
// input produce identical results regardless of map iteration order.
type Association struct {
	RouteIDs   map[string][]string
	RouteNames map[string][]string
}

// StopRoutesFromOrdering builds the association from an explicit route→stop
// ordering table. Membership is exact: a stop belongs to a route iff it
// appears in that route's ordered list.
func StopRoutesFromOrdering(ordering domain.StopOrdering, names map[string]string) Association {
	ids := make(map[string]map[string]struct{})
	for routeID, stopIDs := range ordering {
		for _, stopID := range stopIDs {
			addToSet(ids, stopID, routeID)
		}
	}
	return finalize(ids, names)
}

// StopRoutesByProximity associates a stop with a route when the stop lies
// within ProximityThresholdMeters of any segment of one of the route's
// shapes. Candidates are pruned with an S2 cell index before the exact
// point-to-segment test; the pruning radius is far beyond the threshold,
// so it never excludes a stop the exact test would accept.
func StopRoutesByProximity(
	stops map[string]*domain.Stop,
	shapes map[string]*domain.Shape,
	shapeRoutes map[string]string,
	names map[string]string,
) Association {
	index := buildCellIndex(stops)
	ids := make(map[string]map[string]struct{})

	for shapeID, routeID := range shapeRoutes {
		shape, ok := shapes[shapeID]
		if !ok || len(shape.Points) == 0 {
			continue
		}

		for _, stop := range candidateStops(index, shape) {
			d := geo.PolylineDistanceMeters(stop.Lat, stop.Lon, shape.Points)
			if d <= ProximityThresholdMeters {
				addToSet(ids, stop.ID, routeID)
			}
		}
	}
	return finalize(ids, names)
}

// StopRoutes picks the strategy: the explicit ordering table when the feed
// provides one, geometric proximity otherwise.
func StopRoutes(ds *feed.Dataset, shapeRoutes map[string]string, names map[string]string) Association {
	if len(ds.Ordering) > 0 {
		return StopRoutesFromOrdering(ds.Ordering, names)
	}
	return StopRoutesByProximity(ds.Stops, ds.Shapes, shapeRoutes, names)
}

// Result bundles every derived join of one feed load.
type Result struct {
	ShapeRoutes      map[string]string
	Styles           Styles
	AccessibleRoutes map[string]bool
	StopAssoc        Association
}

// BuildAll runs all joins over a built dataset.
func BuildAll(ds *feed.Dataset) *Result {
	shapeRoutes := ShapeRoutes(ds.Trips)
	styles := RouteStyles(ds.Routes)
	return &Result{
		ShapeRoutes:      shapeRoutes,
		Styles:           styles,
		AccessibleRoutes: AccessibleRoutes(ds.Trips),
		StopAssoc:        StopRoutes(ds, shapeRoutes, styles.Names),
	}
}

func buildCellIndex(stops map[string]*domain.Stop) map[s2.CellID][]*domain.Stop {
	index := make(map[s2.CellID][]*domain.Stop)
	for _, stop := range stops {
		c := cellOf(stop.Lat, stop.Lon)
		index[c] = append(index[c], stop)
	}
	return index
}

// candidateStops collects the stops whose cells lie on or next to the
// shape. The exact test measures distance to segments, so cells are
// collected along each segment at sub-cell spacing, not just at the
// vertices; a long segment would otherwise leave its midsection uncovered.
func candidateStops(index map[s2.CellID][]*domain.Stop, shape *domain.Shape) []*domain.Stop {
	cells := make(map[s2.CellID]struct{})
	addCell := func(lat, lon float64) {
		c := cellOf(lat, lon)
		if _, seen := cells[c]; seen {
			return
		}
		cells[c] = struct{}{}
		for _, n := range c.AllNeighbors(s2Level) {
			cells[n] = struct{}{}
		}
	}

	pts := shape.Points
	for i, pt := range pts {
		addCell(pt.Lat, pt.Lon)
		if i+1 >= len(pts) {
			break
		}
		next := pts[i+1]
		length := geo.HaversineMeters(pt.Lat, pt.Lon, next.Lat, next.Lon)
		steps := int(length / segmentSampleMeters)
		for s := 1; s <= steps; s++ {
			f := float64(s) / float64(steps+1)
			addCell(pt.Lat+(next.Lat-pt.Lat)*f, pt.Lon+(next.Lon-pt.Lon)*f)
		}
	}

	seen := make(map[string]struct{})
	var candidates []*domain.Stop
	for c := range cells {
		for _, stop := range index[c] {
			if _, dup := seen[stop.ID]; dup {
				continue
			}
			seen[stop.ID] = struct{}{}
			candidates = append(candidates, stop)
		}
	}
	return candidates
}

func cellOf(lat, lon float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(s2Level)
}

func addToSet(m map[string]map[string]struct{}, stopID, routeID string) {
	if m[stopID] == nil {
		m[stopID] = make(map[string]struct{})
	}
	m[stopID][routeID] = struct{}{}
}

func finalize(ids map[string]map[string]struct{}, names map[string]string) Association {
	assoc := Association{
		RouteIDs:   make(map[string][]string, len(ids)),
		RouteNames: make(map[string][]string, len(ids)),
	}
	for stopID, routeSet := range ids {
		routeIDs := make([]string, 0, len(routeSet))
		nameSet := make(map[string]struct{}, len(routeSet))
		for routeID := range routeSet {
			routeIDs = append(routeIDs, routeID)
			name, ok := names[routeID]
			if !ok || name == "" {
				name = routeID
			}
			nameSet[name] = struct{}{}
		}
		sort.Strings(routeIDs)

		routeNames := make([]string, 0, len(nameSet))
		for name := range nameSet {
			routeNames = append(routeNames, name)
		}
		sort.Strings(routeNames)

		assoc.RouteIDs[stopID] = routeIDs
		assoc.RouteNames[stopID] = routeNames
	}
	return assoc
}
