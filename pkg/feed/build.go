package feed

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"transitmap/internal/domain"
)

// Dataset is the validated, typed form of one feed load. It is immutable
// after Build: every derived structure downstream is a pure function of it.
type Dataset struct {
	Stops    map[string]*domain.Stop
	Shapes   map[string]*domain.Shape
	Routes   map[string]*domain.Route
	Trips    []*domain.Trip
	Ordering domain.StopOrdering

	// DroppedStops counts stop rows discarded for non-finite coordinates.
	DroppedStops int
}

// Build converts raw tables into a Dataset.
func Build(t *Tables) *Dataset {
	stops, dropped := BuildStops(t.Stops)
	return &Dataset{
		Stops:        stops,
		Shapes:       BuildShapes(t.Shapes),
		Routes:       BuildRoutes(t.Routes),
		Trips:        BuildTrips(t.Trips),
		Ordering:     BuildOrdering(t.RouteStops),
		DroppedStops: dropped,
	}
}

var knownStopFields = map[string]struct{}{
	"stop_id":             {},
	"stop_name":           {},
	"stop_lat":            {},
	"stop_lon":            {},
	"location_type":       {},
	"parent_station":      {},
	"wheelchair_boarding": {},
}

// BuildStops converts stop rows, keeping only rows whose coordinates both
// parse to finite numbers. The second return value is the dropped-row
// count. Dropping is silent by contract: a malformed row is not an error.
// Rows sharing a stop_id collapse to one entry, last row wins, so the
// result size can be smaller than valid-row count for feeds with repeated
// ids.
func BuildStops(rows []Row) (map[string]*domain.Stop, int) {
	stops := make(map[string]*domain.Stop, len(rows))
	dropped := 0

	for _, row := range rows {
		lat, latErr := strconv.ParseFloat(row.Get("stop_lat"), 64)
		lon, lonErr := strconv.ParseFloat(row.Get("stop_lon"), 64)
		if latErr != nil || lonErr != nil || !isFinite(lat) || !isFinite(lon) {
			dropped++
			continue
		}

		stop := &domain.Stop{
			ID:                 row.Get("stop_id"),
			Name:               row.Get("stop_name"),
			Lat:                lat,
			Lon:                lon,
			LocationType:       row.Get("location_type"),
			ParentStation:      row.Get("parent_station"),
			WheelchairBoarding: row.Get("wheelchair_boarding"),
		}

		for field, value := range row {
			if _, known := knownStopFields[field]; known {
				continue
			}
			if stop.Extra == nil {
				stop.Extra = make(map[string]string)
			}
			stop.Extra[field] = value
		}

		stops[stop.ID] = stop
	}
	return stops, dropped
}

// BuildShapes groups shape rows by shape id and sorts each group ascending
// by sequence. The sort is stable, so rows with equal (or defaulted)
// sequence keep their input order.
func BuildShapes(rows []Row) map[string]*domain.Shape {
	points := make(map[string][]domain.ShapePoint)

	for _, row := range rows {
		shapeID := row.Get("shape_id")

		lat, _ := strconv.ParseFloat(row.Get("shape_pt_lat"), 64)
		lon, _ := strconv.ParseFloat(row.Get("shape_pt_lon"), 64)
		seq, err := strconv.Atoi(row.Get("shape_pt_sequence"))
		if err != nil {
			seq = 0
		}

		points[shapeID] = append(points[shapeID], domain.ShapePoint{
			Lat:      lat,
			Lon:      lon,
			Sequence: seq,
		})
	}

	shapes := make(map[string]*domain.Shape, len(points))
	for shapeID, pts := range points {
		sort.SliceStable(pts, func(i, j int) bool {
			return pts[i].Sequence < pts[j].Sequence
		})
		shapes[shapeID] = &domain.Shape{
			ID:     shapeID,
			Points: pts,
		}
	}
	return shapes
}

// BuildRoutes converts route rows. Colors are normalized to carry a leading
// '#'; an empty color stays empty.
func BuildRoutes(rows []Row) map[string]*domain.Route {
	routes := make(map[string]*domain.Route, len(rows))
	for _, row := range rows {
		route := &domain.Route{
			ID:        row.Get("route_id"),
			ShortName: row.Get("route_short_name"),
			LongName:  row.Get("route_long_name"),
			Color:     normalizeColor(row.Get("route_color")),
		}
		routes[route.ID] = route
	}
	return routes
}

// BuildTrips converts trip rows preserving file order, which downstream
// first-seen joins depend on.
func BuildTrips(rows []Row) []*domain.Trip {
	trips := make([]*domain.Trip, 0, len(rows))
	for _, row := range rows {
		trips = append(trips, &domain.Trip{
			TripID:               row.Get("trip_id"),
			RouteID:              row.Get("route_id"),
			ShapeID:              row.Get("shape_id"),
			WheelchairAccessible: row.Get("wheelchair_accessible"),
		})
	}
	return trips
}

// BuildOrdering converts the optional route→stop ordering table. Order of
// stop ids per route is file order.
func BuildOrdering(rows []Row) domain.StopOrdering {
	if len(rows) == 0 {
		return nil
	}
	ordering := make(domain.StopOrdering)
	for _, row := range rows {
		routeID := row.Get("route_id")
		stopID := row.Get("stop_id")
		if routeID == "" || stopID == "" {
			continue
		}
		ordering[routeID] = append(ordering[routeID], stopID)
	}
	return ordering
}

func normalizeColor(c string) string {
	if c == "" || strings.HasPrefix(c, "#") {
		return c
	}
	return "#" + c
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
