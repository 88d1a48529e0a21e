package filter

import (
	"testing"

	"transitmap/internal/domain"
	"transitmap/internal/join"
)

func testStops() map[string]*domain.Stop {
	return map[string]*domain.Stop{
		"s1": {ID: "s1", Name: "Gare Centrale", WheelchairBoarding: domain.AccessibilityYes},
		"s2": {ID: "s2", Name: "Harbor Terminal"},
		"s3": {ID: "s3", Name: "Museumplein", ParentStation: "gare-hub"},
	}
}

func testAssoc() join.Association {
	return join.Association{
		RouteIDs: map[string][]string{
			"s1": {"r1", "r2"},
			"s2": {"r2"},
			"s3": {"r3"},
		},
		RouteNames: map[string][]string{
			"s1": {"10", "Night Express"},
			"s2": {"Night Express"},
			"s3": {"7"},
		},
	}
}

func evaluate(t *testing.T, state State, accessible map[string]bool) map[string]bool {
	t.Helper()
	stops := testStops()
	ev := NewEvaluator(state, testAssoc(), accessible, stops)

	passed := make(map[string]bool, len(stops))
	for id, s := range stops {
		passed[id] = ev.StopPasses(s)
	}
	return passed
}

func TestStopQueryMatchesName(t *testing.T) {
	tests := []struct {
		query string
		want  map[string]bool
	}{
		{"Gare Centrale", map[string]bool{"s1": true, "s2": false, "s3": false}},
		{"gare", map[string]bool{"s1": true, "s2": false, "s3": true}}, // s3 via parent station
		{"GARE", map[string]bool{"s1": true, "s2": false, "s3": true}},
		{"zzz", map[string]bool{"s1": false, "s2": false, "s3": false}},
		{"", map[string]bool{"s1": true, "s2": true, "s3": true}},
	}

	for _, tt := range tests {
		got := evaluate(t, State{StopQuery: tt.query}, nil)
		for id, want := range tt.want {
			if got[id] != want {
				t.Errorf("query %q: stop %s passed=%v, want %v", tt.query, id, got[id], want)
			}
		}
	}
}

func TestStopQueryMatchesID(t *testing.T) {
	got := evaluate(t, State{StopQuery: "s2"}, nil)
	if !got["s2"] {
		t.Errorf("query by stop id should match")
	}
}

func TestSelectedRouteIsExact(t *testing.T) {
	got := evaluate(t, State{SelectedRoute: "Night Express"}, nil)
	if !got["s1"] || !got["s2"] || got["s3"] {
		t.Errorf("selected route: %v", got)
	}

	// Substring of a display name is not a selection match.
	got = evaluate(t, State{SelectedRoute: "Night"}, nil)
	if got["s1"] || got["s2"] {
		t.Errorf("partial selected route should not match: %v", got)
	}
}

func TestRouteSearchIsSubstring(t *testing.T) {
	got := evaluate(t, State{RouteSearch: "night"}, nil)
	if !got["s1"] || !got["s2"] || got["s3"] {
		t.Errorf("route search: %v", got)
	}
}

func TestWheelchairOnly(t *testing.T) {
	// s1 is itself accessible. s2 is not, but r2 has accessible trips.
	// s3 has neither.
	accessible := map[string]bool{"r2": true}

	got := evaluate(t, State{WheelchairOnly: true}, accessible)
	if !got["s1"] {
		t.Errorf("accessible stop should pass")
	}
	if !got["s2"] {
		t.Errorf("stop on accessible route should pass")
	}
	if got["s3"] {
		t.Errorf("stop with no accessibility evidence should be excluded")
	}
}

func TestFiltersCombineWithAnd(t *testing.T) {
	got := evaluate(t, State{StopQuery: "gare", RouteSearch: "night"}, nil)
	if !got["s1"] || got["s2"] || got["s3"] {
		t.Errorf("combined filters: %v", got)
	}
}

func TestRoutePasses(t *testing.T) {
	ev := NewEvaluator(State{RouteSearch: "exp"}, testAssoc(), nil, testStops())

	if !ev.RoutePasses("r2", "Night Express") {
		t.Errorf("substring route search should pass the line")
	}
	if ev.RoutePasses("r3", "7") {
		t.Errorf("non-matching line should be excluded")
	}
}

func TestRoutePassesWheelchair(t *testing.T) {
	// r1 serves accessible stop s1; r3 has no evidence.
	ev := NewEvaluator(State{WheelchairOnly: true}, testAssoc(), map[string]bool{}, testStops())

	if !ev.RoutePasses("r1", "10") {
		t.Errorf("route with accessible stop should pass")
	}
	if ev.RoutePasses("r3", "7") {
		t.Errorf("route without evidence should be excluded")
	}
}

func TestFilterStops(t *testing.T) {
	stops := testStops()
	ev := NewEvaluator(State{StopQuery: "harbor"}, testAssoc(), nil, stops)

	all := make([]*domain.Stop, 0, len(stops))
	for _, s := range stops {
		all = append(all, s)
	}

	got := ev.FilterStops(all)
	if len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("FilterStops = %v", got)
	}
}
