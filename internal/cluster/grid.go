package cluster

import (
	"math"
	"sort"

	"transitmap/internal/domain"
	"transitmap/internal/geo"
)

// DefaultCellSizePx is the screen-space grid cell size used when the client
// does not ask for one.
const DefaultCellSizePx = 64

// FitPadFraction is the margin added around the bounds of a cluster's
// members when the viewport is re-fitted to them.
const FitPadFraction = 0.15

type cellKey struct {
	X int
	Y int
}

// Grid buckets the given stops into a fixed-size screen-pixel grid for the
// viewport and returns one cluster per occupied cell. The centroid is the
// arithmetic mean of member geographic coordinates, which can drift from
// the cell's visual center where the projection is strongly non-linear; at
// metropolitan zoom levels the drift is negligible.
//
// A degenerate viewport (zero-sized, before the map is mounted) yields no
// clusters; the caller simply recomputes on the next trigger. The result is
// a pure function of (stops, viewport, cell size) and is safe to recompute
// or coalesce at will.
func Grid(stops []*domain.Stop, v domain.Viewport, cellSizePx int) []domain.Cluster {
	if len(stops) == 0 || v.WidthPx <= 0 || v.HeightPx <= 0 {
		return nil
	}
	if cellSizePx <= 0 {
		cellSizePx = DefaultCellSizePx
	}

	proj := geo.NewProjection(v)
	cell := float64(cellSizePx)

	buckets := make(map[cellKey][]*domain.Stop)
	for _, s := range stops {
		x, y := proj.ToScreen(s.Lat, s.Lon)
		key := cellKey{
			X: int(math.Floor(x / cell)),
			Y: int(math.Floor(y / cell)),
		}
		buckets[key] = append(buckets[key], s)
	}

	keys := make([]cellKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].X < keys[j].X
	})

	clusters := make([]domain.Cluster, 0, len(keys))
	for _, k := range keys {
		members := buckets[k]

		var sumLat, sumLon float64
		ids := make([]string, 0, len(members))
		for _, s := range members {
			sumLat += s.Lat
			sumLon += s.Lon
			ids = append(ids, s.ID)
		}
		sort.Strings(ids)

		clusters = append(clusters, domain.Cluster{
			Lat:     sumLat / float64(len(members)),
			Lon:     sumLon / float64(len(members)),
			Count:   len(members),
			StopIDs: ids,
		})
	}
	return clusters
}

// FitBounds returns the padded bounding box enclosing the given stops, for
// re-centering the viewport when a multi-member badge is activated.
func FitBounds(stops []*domain.Stop) (domain.BoundingBox, bool) {
	if len(stops) == 0 {
		return domain.BoundingBox{}, false
	}

	bb := domain.BoundingBox{
		MinLat: stops[0].Lat, MaxLat: stops[0].Lat,
		MinLon: stops[0].Lon, MaxLon: stops[0].Lon,
	}
	for _, s := range stops[1:] {
		bb.MinLat = math.Min(bb.MinLat, s.Lat)
		bb.MaxLat = math.Max(bb.MaxLat, s.Lat)
		bb.MinLon = math.Min(bb.MinLon, s.Lon)
		bb.MaxLon = math.Max(bb.MaxLon, s.Lon)
	}
	return bb.Pad(FitPadFraction), true
}
