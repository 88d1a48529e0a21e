package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"transitmap/internal/cluster"
	"transitmap/internal/domain"
	"transitmap/internal/filter"
	"transitmap/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// filterFromQuery reads the filter state from query parameters. All are
// optional; missing parameters mean no filtering on that axis.
func filterFromQuery(r *http.Request) filter.State {
	q := r.URL.Query()
	wheelchair := q.Get("wheelchair")
	return filter.State{
		SelectedRoute:  q.Get("route"),
		RouteSearch:    q.Get("routeSearch"),
		WheelchairOnly: wheelchair == "1" || wheelchair == "true",
		StopQuery:      q.Get("q"),
	}
}

// filteredStops evaluates the filter state against the current dataset.
func filteredStops(st *store.Store, state filter.State) []*domain.Stop {
	stops := st.StopsSnapshot()
	joins := st.Joins()
	ev := filter.NewEvaluator(state, joins.StopAssoc, joins.AccessibleRoutes, stops)

	all := make([]*domain.Stop, 0, len(stops))
	for _, s := range stops {
		all = append(all, s)
	}
	return ev.FilterStops(all)
}

// computeClusters runs the full pipeline for one view: filter the stops,
// then grid-cluster them for the viewport.
func computeClusters(st *store.Store, state filter.State, vp domain.Viewport, cellSizePx int) []domain.Cluster {
	return cluster.Grid(filteredStops(st, state), vp, cellSizePx)
}

func viewportFromQuery(r *http.Request) (domain.Viewport, error) {
	q := r.URL.Query()

	centerLat, err := strconv.ParseFloat(q.Get("centerLat"), 64)
	if err != nil {
		return domain.Viewport{}, err
	}
	centerLon, err := strconv.ParseFloat(q.Get("centerLon"), 64)
	if err != nil {
		return domain.Viewport{}, err
	}
	zoom, err := strconv.ParseFloat(q.Get("zoom"), 64)
	if err != nil {
		return domain.Viewport{}, err
	}
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		return domain.Viewport{}, err
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil {
		return domain.Viewport{}, err
	}

	return domain.Viewport{
		CenterLat: centerLat,
		CenterLon: centerLon,
		Zoom:      zoom,
		WidthPx:   width,
		HeightPx:  height,
	}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}

func serverTime() time.Time {
	return time.Now()
}
