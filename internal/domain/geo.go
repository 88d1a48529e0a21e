package domain

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}

// Pad grows the box by the given fraction of its span on every side, so a
// viewport fitted to it leaves a margin around the outermost markers.
func (bb BoundingBox) Pad(fraction float64) BoundingBox {
	latPad := (bb.MaxLat - bb.MinLat) * fraction
	lonPad := (bb.MaxLon - bb.MinLon) * fraction
	return BoundingBox{
		MinLat: bb.MinLat - latPad,
		MaxLat: bb.MaxLat + latPad,
		MinLon: bb.MinLon - lonPad,
		MaxLon: bb.MaxLon + lonPad,
	}
}

// Viewport describes the client's current map view: geographic center,
// slippy-map zoom level, and the widget size in pixels.
type Viewport struct {
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Zoom      float64 `json:"zoom"`
	WidthPx   int     `json:"widthPx"`
	HeightPx  int     `json:"heightPx"`
}

// Cluster is a viewport-dependent aggregation of stop markers. The centroid
// is the arithmetic mean of the member geographic coordinates, not the
// screen-space mean. Clusters are ephemeral: recomputed on every pan, zoom
// or filter change and never stored.
type Cluster struct {
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Count   int      `json:"count"`
	StopIDs []string `json:"stopIds"`
}
