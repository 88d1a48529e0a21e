package handler

import (
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"transitmap/internal/domain"
)

// ExportGeoJSON renders the current map contents as a GeoJSON
// FeatureCollection: one LineString per shape, one Point per stop. The
// same filter parameters as the stops listing apply, and a route name
// narrows the export to that route's shapes and stops.
func (h *MapHandler) ExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := geojson.NewFeatureCollection()

	state := filterFromQuery(r)
	stops := filteredStops(h.store, state)

	var shapes []*domain.Shape
	if name := r.URL.Query().Get("route"); name != "" {
		route, ok := h.store.GetRouteByName(name)
		if !ok {
			respondError(w, http.StatusNotFound, "route not found")
			return
		}
		shapes = h.store.GetRouteShapes(route.ID)
	}

	joins := h.store.Joins()
	for _, shape := range shapes {
		line := make(orb.LineString, 0, len(shape.Points))
		for _, pt := range shape.Points {
			line = append(line, orb.Point{pt.Lon, pt.Lat})
		}
		feature := geojson.NewFeature(line)
		feature.Properties["shape_id"] = shape.ID
		if routeID, ok := joins.ShapeRoutes[shape.ID]; ok {
			feature.Properties["route_id"] = routeID
			if color, ok := joins.Styles.Colors[routeID]; ok {
				feature.Properties["stroke"] = color
			}
		}
		fc.Append(feature)
	}

	for _, stop := range stops {
		feature := geojson.NewFeature(orb.Point{stop.Lon, stop.Lat})
		feature.Properties["stop_id"] = stop.ID
		feature.Properties["name"] = stop.Name
		feature.Properties["wheelchair"] = stop.Accessible()
		fc.Append(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "geojson encoding failed")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
