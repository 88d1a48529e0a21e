package geo

import (
	"math"

	"transitmap/internal/domain"
)

const tileSize = 256.0

// worldCoords projects a geographic coordinate to Web Mercator (slippy map)
// world-pixel space at the given zoom level.
func worldCoords(lat, lon, zoom float64) (x, y float64) {
	scale := tileSize * math.Pow(2, zoom)
	x = (lon + 180.0) / 360.0 * scale

	latRad := lat * math.Pi / 180.0
	// Clamp away from the poles where the Mercator projection diverges.
	merc := math.Log(math.Tan(latRad) + 1.0/math.Cos(latRad))
	if math.IsInf(merc, 0) || math.IsNaN(merc) {
		if latRad > 0 {
			merc = math.Pi
		} else {
			merc = -math.Pi
		}
	}
	y = (1.0 - merc/math.Pi) / 2.0 * scale
	return x, y
}

// Projection maps geographic coordinates to screen pixels for one viewport.
// It is a pure value: build one per viewport and discard it.
type Projection struct {
	originX float64
	originY float64
	zoom    float64
}

// NewProjection builds the screen projection for a viewport, with (0,0) at
// the viewport's top-left pixel.
func NewProjection(v domain.Viewport) Projection {
	cx, cy := worldCoords(v.CenterLat, v.CenterLon, v.Zoom)
	return Projection{
		originX: cx - float64(v.WidthPx)/2,
		originY: cy - float64(v.HeightPx)/2,
		zoom:    v.Zoom,
	}
}

// ToScreen returns the pixel position of a geographic coordinate within the
// viewport. Coordinates outside the viewport yield positions outside the
// [0,width)x[0,height) range, which is fine for grid bucketing.
func (p Projection) ToScreen(lat, lon float64) (x, y float64) {
	wx, wy := worldCoords(lat, lon, p.zoom)
	return wx - p.originX, wy - p.originY
}
