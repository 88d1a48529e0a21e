package domain

// Wheelchair accessibility values as they appear in the feed. The raw
// tri-state string is kept on the entities; absence of evidence is treated
// as not accessible by every consumer.
const (
	AccessibilityUnknown = "0"
	AccessibilityYes     = "1"
	AccessibilityNo      = "2"
)

// Stop represents a transit stop with a validated coordinate. Optional
// fields are empty strings, never missing, so downstream string matching
// does not need nil checks.
type Stop struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	LocationType       string  `json:"location_type"`
	ParentStation      string  `json:"parent_station"`
	WheelchairBoarding string  `json:"wheelchair_boarding"`

	// Extra holds columns beyond the known set, preserved as opaque strings.
	Extra map[string]string `json:"extra,omitempty"`
}

// Accessible reports whether the stop itself is marked wheelchair accessible.
func (s *Stop) Accessible() bool {
	return s.WheelchairBoarding == AccessibilityYes
}

// ShapePoint is a single vertex of a route shape polyline.
type ShapePoint struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Sequence int     `json:"sequence"`
}

// Shape is the ordered polyline of one vehicle path variant. Points are
// sorted ascending by sequence; ties keep input order.
type Shape struct {
	ID     string       `json:"id"`
	Points []ShapePoint `json:"points"`
}

// Route represents a transit route from the feed.
type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Color     string `json:"color"`
}

// DisplayName resolves the name shown on the map: short name, falling back
// to long name, falling back to the id.
func (r *Route) DisplayName() string {
	if r.ShortName != "" {
		return r.ShortName
	}
	if r.LongName != "" {
		return r.LongName
	}
	return r.ID
}

// Trip links a shape to a route and carries the trip's accessibility flag.
type Trip struct {
	TripID               string `json:"trip_id"`
	RouteID              string `json:"route_id"`
	ShapeID              string `json:"shape_id"`
	WheelchairAccessible string `json:"wheelchair_accessible"`
}

// StopOrdering maps a route id to its ordered list of stop ids, when the
// feed ships an explicit route→stop ordering table. Order is file order.
type StopOrdering map[string][]string
