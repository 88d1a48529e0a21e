package geo

import (
	"math"

	"transitmap/internal/domain"
)

// Meters per degree of latitude. Longitude degrees shrink with the cosine
// of the latitude; see metersPerLonDegree.
const metersPerLatDegree = 111320.0

const earthRadiusMeters = 6371000.0

func metersPerLonDegree(latDeg float64) float64 {
	return metersPerLatDegree * math.Cos(latDeg*math.Pi/180)
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// SegmentDistanceMeters returns the planar distance from point p to the
// segment a-b. All three points are projected into a local equirectangular
// frame anchored at their mean latitude, then the distance is the standard
// vector projection clamped to the segment. This is an approximation good
// for stop-to-route association at metropolitan scale, not exact map
// matching.
func SegmentDistanceMeters(pLat, pLon, aLat, aLon, bLat, bLon float64) float64 {
	meanLat := (pLat + aLat + bLat) / 3
	mx := metersPerLonDegree(meanLat)

	px := (pLon - aLon) * mx
	py := (pLat - aLat) * metersPerLatDegree
	bx := (bLon - aLon) * mx
	by := (bLat - aLat) * metersPerLatDegree

	segLenSq := bx*bx + by*by
	if segLenSq == 0 {
		return math.Hypot(px, py)
	}

	t := (px*bx + py*by) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return math.Hypot(px-t*bx, py-t*by)
}

// PolylineDistanceMeters returns the minimum distance from a point to any
// consecutive segment of the polyline. A single-point polyline degenerates
// to the great-circle distance to that point.
func PolylineDistanceMeters(lat, lon float64, points []domain.ShapePoint) float64 {
	switch len(points) {
	case 0:
		return math.Inf(1)
	case 1:
		return HaversineMeters(lat, lon, points[0].Lat, points[0].Lon)
	}

	min := math.Inf(1)
	for i := 0; i+1 < len(points); i++ {
		d := SegmentDistanceMeters(lat, lon,
			points[i].Lat, points[i].Lon,
			points[i+1].Lat, points[i+1].Lon)
		if d < min {
			min = d
		}
	}
	return min
}
