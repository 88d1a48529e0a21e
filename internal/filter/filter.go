package filter

import (
	"strings"

	"transitmap/internal/domain"
	"transitmap/internal/join"
)

// State is the full filter state of one map client. Zero value means no
// filtering: everything passes.
type State struct {
	// SelectedRoute matches a route display name exactly; empty disables it.
	SelectedRoute string `json:"selectedRoute"`
	// RouteSearch is a case-insensitive substring over route display names.
	RouteSearch string `json:"routeSearch"`
	// WheelchairOnly keeps only stops/routes with accessibility evidence.
	WheelchairOnly bool `json:"wheelchairOnly"`
	// StopQuery is a case-insensitive substring over stop name, id, parent
	// station and location type.
	StopQuery string `json:"stopQuery"`
}

// matches is the single matching helper shared by every predicate: route
// search and stop metadata filtering use identical case-insensitive
// substring semantics, so the two evaluators cannot drift apart.
func matches(query, value string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(query))
}

func matchesAny(query string, values ...string) bool {
	for _, v := range values {
		if matches(query, v) {
			return true
		}
	}
	return false
}

// Evaluator decides whether stops and route lines pass a filter state. It
// is built once per evaluation from the current joins and never mutated.
type Evaluator struct {
	state State

	namesByStop      map[string][]string
	idsByStop        map[string][]string
	accessibleRoutes map[string]bool

	// routesWithAccessibleStop marks routes serving at least one stop that
	// is itself marked accessible.
	routesWithAccessibleStop map[string]bool
}

// NewEvaluator prepares an evaluator for one filter state. Routes absent
// from accessibleRoutes are treated as not accessible.
func NewEvaluator(state State, assoc join.Association, accessibleRoutes map[string]bool, stops map[string]*domain.Stop) *Evaluator {
	withAccessibleStop := make(map[string]bool)
	for stopID, routeIDs := range assoc.RouteIDs {
		stop, ok := stops[stopID]
		if !ok || !stop.Accessible() {
			continue
		}
		for _, routeID := range routeIDs {
			withAccessibleStop[routeID] = true
		}
	}

	return &Evaluator{
		state:                    state,
		namesByStop:              assoc.RouteNames,
		idsByStop:                assoc.RouteIDs,
		accessibleRoutes:         accessibleRoutes,
		routesWithAccessibleStop: withAccessibleStop,
	}
}

// StopPasses reports whether the stop survives the current filter state.
func (e *Evaluator) StopPasses(stop *domain.Stop) bool {
	if e.state.StopQuery != "" &&
		!matchesAny(e.state.StopQuery, stop.Name, stop.ID, stop.ParentStation, stop.LocationType) {
		return false
	}

	names := e.namesByStop[stop.ID]

	if e.state.SelectedRoute != "" && !containsExact(names, e.state.SelectedRoute) {
		return false
	}

	if e.state.RouteSearch != "" && !anyMatches(names, e.state.RouteSearch) {
		return false
	}

	if e.state.WheelchairOnly {
		if stop.Accessible() {
			return true
		}
		for _, routeID := range e.idsByStop[stop.ID] {
			if e.accessibleRoutes[routeID] {
				return true
			}
		}
		return false
	}
	return true
}

// RoutePasses reports whether the route's line survives the current filter
// state.
func (e *Evaluator) RoutePasses(routeID, displayName string) bool {
	if e.state.SelectedRoute != "" && displayName != e.state.SelectedRoute {
		return false
	}
	if e.state.RouteSearch != "" && !matches(e.state.RouteSearch, displayName) {
		return false
	}
	if e.state.WheelchairOnly {
		return e.accessibleRoutes[routeID] || e.routesWithAccessibleStop[routeID]
	}
	return true
}

// FilterStops returns the stops passing the filter.
func (e *Evaluator) FilterStops(stops []*domain.Stop) []*domain.Stop {
	result := make([]*domain.Stop, 0, len(stops))
	for _, s := range stops {
		if e.StopPasses(s) {
			result = append(result, s)
		}
	}
	return result
}

func containsExact(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func anyMatches(values []string, query string) bool {
	for _, v := range values {
		if matches(query, v) {
			return true
		}
	}
	return false
}
