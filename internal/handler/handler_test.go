package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitmap/internal/domain"
	"transitmap/internal/join"
	"transitmap/internal/store"
	"transitmap/pkg/feed"
)

func testServer(t *testing.T, st *store.Store) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewMapHandler(st, nil, nil, 64, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/routes", h.ListRoutes)
	mux.HandleFunc("GET /v1/routes/names", h.ListRouteNames)
	mux.HandleFunc("GET /v1/routes/{name}", h.GetRoute)
	mux.HandleFunc("GET /v1/routes/{name}/geometry", h.GetRouteGeometry)
	mux.HandleFunc("GET /v1/stops", h.ListStops)
	mux.HandleFunc("GET /v1/stops/{id}", h.GetStop)
	mux.HandleFunc("GET /v1/clusters", h.GetClusters)
	mux.HandleFunc("GET /v1/sync", h.GetSync)
	mux.HandleFunc("GET /v1/export/geojson", h.ExportGeoJSON)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loadedStore() *store.Store {
	ds := &feed.Dataset{
		Stops: map[string]*domain.Stop{
			"a": {ID: "a", Name: "Gare Centrale", Lat: 52.22, Lon: 21.0},
			"b": {ID: "b", Name: "Harbor", Lat: 52.23, Lon: 21.0},
		},
		Shapes: map[string]*domain.Shape{
			"s1": {ID: "s1", Points: []domain.ShapePoint{
				{Lat: 52.20, Lon: 21.0, Sequence: 1},
				{Lat: 52.25, Lon: 21.0, Sequence: 2},
			}},
		},
		Routes: map[string]*domain.Route{
			"r1": {ID: "r1", ShortName: "10", Color: "#FF0000"},
		},
		Trips: []*domain.Trip{
			{TripID: "t1", RouteID: "r1", ShapeID: "s1"},
		},
	}
	st := store.New()
	st.UpdateAll(ds, join.BuildAll(ds))
	return st
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestSyncUnavailableBeforeLoad(t *testing.T) {
	srv := testServer(t, store.New())

	resp, err := http.Get(srv.URL + "/v1/sync")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
}

func TestSyncETag(t *testing.T) {
	srv := testServer(t, loadedStore())

	resp, err := http.Get(srv.URL + "/v1/sync")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/sync", nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()

	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)
}

func TestListStopsWithQuery(t *testing.T) {
	srv := testServer(t, loadedStore())

	var out StopsResponse
	getJSON(t, srv.URL+"/v1/stops?q=gare", &out)

	require.Equal(t, 1, out.Count)
	assert.Equal(t, "a", out.Stops[0].ID)
}

func TestListStopsRouteSearch(t *testing.T) {
	srv := testServer(t, loadedStore())

	// Both stops sit on the shape of route "10".
	var out StopsResponse
	getJSON(t, srv.URL+"/v1/stops?routeSearch=1", &out)
	assert.Equal(t, 2, out.Count)

	getJSON(t, srv.URL+"/v1/stops?routeSearch=99", &out)
	assert.Equal(t, 0, out.Count)
}

func TestGetStopNotFound(t *testing.T) {
	srv := testServer(t, loadedStore())

	resp := getJSON(t, srv.URL+"/v1/stops/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRouteByDisplayName(t *testing.T) {
	srv := testServer(t, loadedStore())

	var route domain.Route
	resp := getJSON(t, srv.URL+"/v1/routes/10", &route)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "r1", route.ID)
}

func TestGeometryFallsBackToApproximate(t *testing.T) {
	// No enricher configured: the endpoint serves the shape polyline.
	srv := testServer(t, loadedStore())

	var out GeometryResponse
	resp := getJSON(t, srv.URL+"/v1/routes/10/geometry", &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "approximate", out.Source)
	require.Len(t, out.Lines, 1)
	assert.Len(t, out.Lines[0], 2)
}

func TestClustersRequireViewport(t *testing.T) {
	srv := testServer(t, loadedStore())

	resp := getJSON(t, srv.URL+"/v1/clusters", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClustersForViewport(t *testing.T) {
	srv := testServer(t, loadedStore())

	var out ClustersResponse
	resp := getJSON(t, srv.URL+"/v1/clusters?centerLat=52.225&centerLon=21.0&zoom=10&width=800&height=600", &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	total := 0
	for _, c := range out.Clusters {
		total += c.Count
	}
	assert.Equal(t, 2, total)
}

func TestExportGeoJSON(t *testing.T) {
	srv := testServer(t, loadedStore())

	resp, err := http.Get(srv.URL + "/v1/export/geojson?route=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))

	assert.Equal(t, "FeatureCollection", fc.Type)
	// One LineString for the shape plus a Point per stop.
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
}
