package enrich

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitmap/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelationClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/relation/12345", r.URL.Path)
		w.Write([]byte(`{"segments":[[[52.1,21.0],[52.2,21.1]],[[52.3,21.2]]]}`))
	}))
	defer srv.Close()

	geom, err := NewRelationClient(srv.URL).Fetch(context.Background(), 12345)
	require.NoError(t, err)
	require.Len(t, geom.Lines, 2)
	assert.Equal(t, LatLon{Lat: 52.1, Lon: 21.0}, geom.Lines[0][0])
}

func TestRelationClientEmptyGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[]}`))
	}))
	defer srv.Close()

	_, err := NewRelationClient(srv.URL).Fetch(context.Background(), 1)
	assert.Error(t, err)
}

func TestRouterClientSwapsLonLat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// OSRM coordinate order in both request and response is lon,lat.
		assert.Contains(t, r.URL.Path, "21.000000,52.100000;21.100000,52.200000")
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[21.0,52.1],[21.05,52.15]]}}]}`))
	}))
	defer srv.Close()

	geom, err := NewRouterClient(srv.URL).Route(context.Background(), []LatLon{
		{Lat: 52.1, Lon: 21.0},
		{Lat: 52.2, Lon: 21.1},
	})
	require.NoError(t, err)
	require.Len(t, geom.Lines, 1)
	assert.Equal(t, LatLon{Lat: 52.1, Lon: 21.0}, geom.Lines[0][0])
}

func TestRouterClientRejectsBadCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewRouterClient(srv.URL).Route(context.Background(), []LatLon{
		{Lat: 52.1, Lon: 21.0}, {Lat: 52.2, Lon: 21.1},
	})
	assert.Error(t, err)
}

func TestEnrichUsesSidecarRelation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"segments":[[[52.1,21.0],[52.2,21.1]]]}`))
	}))
	defer srv.Close()

	sc := Sidecar{"10": 777}
	e := New(NewRelationClient(srv.URL), nil, sc, nil, 0, discardLogger())

	route := &domain.Route{ID: "r1", ShortName: "10"}
	geom, ok := e.Enrich(context.Background(), route, nil)
	require.True(t, ok)
	require.Len(t, geom.Lines, 1)
}

func TestEnrichFallsBackSilentlyOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sc := Sidecar{"10": 777}
	e := New(NewRelationClient(srv.URL), nil, sc, nil, 0, discardLogger())

	geom, ok := e.Enrich(context.Background(), &domain.Route{ID: "r1", ShortName: "10"}, nil)
	assert.False(t, ok)
	assert.Nil(t, geom)
}

func TestEnrichRoutesThroughWaypoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[21.0,52.1],[21.1,52.2]]}}]}`))
	}))
	defer srv.Close()

	// No sidecar entry, so the router is the fallback source.
	e := New(nil, NewRouterClient(srv.URL), nil, nil, 0, discardLogger())

	stops := []*domain.Stop{
		{ID: "a", Lat: 52.1, Lon: 21.0},
		{ID: "b", Lat: 52.2, Lon: 21.1},
	}
	geom, ok := e.Enrich(context.Background(), &domain.Route{ID: "r1", ShortName: "10"}, stops)
	require.True(t, ok)
	require.Len(t, geom.Lines, 1)
}

func TestEnrichNeedsTwoWaypoints(t *testing.T) {
	e := New(nil, NewRouterClient("http://unreachable.invalid"), nil, nil, 0, discardLogger())

	_, ok := e.Enrich(context.Background(), &domain.Route{ID: "r1"}, []*domain.Stop{{ID: "a"}})
	assert.False(t, ok)
}

func TestEnrichDiscardsStaleResult(t *testing.T) {
	gotRequest := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(gotRequest)
		<-release
		w.Write([]byte(`{"segments":[[[52.1,21.0],[52.2,21.1]]]}`))
	}))
	defer srv.Close()

	sc := Sidecar{"10": 777}
	e := New(NewRelationClient(srv.URL), nil, sc, nil, 0, discardLogger())

	done := make(chan bool)
	go func() {
		_, ok := e.Enrich(context.Background(), &domain.Route{ID: "r1", ShortName: "10"}, nil)
		done <- ok
	}()

	// The selection moves on while the first fetch is in flight; its result
	// must be discarded when it finally arrives.
	<-gotRequest
	e.Select("r2")
	close(release)

	assert.False(t, <-done)
}

func TestEnrichNilRoute(t *testing.T) {
	e := New(nil, nil, nil, nil, 0, discardLogger())
	_, ok := e.Enrich(context.Background(), nil, nil)
	assert.False(t, ok)
}

func TestLoadSidecarMapForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.yml")
	require.NoError(t, os.WriteFile(path, []byte("\"10\": 123\n\" Night Express \": 456\n"), 0o644))

	sc, err := LoadSidecar(path)
	require.NoError(t, err)

	id, ok := sc.Lookup("10")
	assert.True(t, ok)
	assert.EqualValues(t, 123, id)

	// Lookup normalizes case and whitespace.
	id, ok = sc.Lookup("night express")
	assert.True(t, ok)
	assert.EqualValues(t, 456, id)
}

func TestLoadSidecarRecordForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.yml")
	content := "- name: \"10\"\n  relation: 123\n- name: \"\"\n  relation: 99\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sc, err := LoadSidecar(path)
	require.NoError(t, err)

	_, ok := sc.Lookup("10")
	assert.True(t, ok)
	assert.Len(t, sc, 1)
}

func TestLoadSidecarMissingFile(t *testing.T) {
	_, err := LoadSidecar(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
