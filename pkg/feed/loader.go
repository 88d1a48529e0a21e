package feed

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table file names within a feed, GTFS naming.
const (
	FileStops      = "stops.txt"
	FileShapes     = "shapes.txt"
	FileTrips      = "trips.txt"
	FileRoutes     = "routes.txt"
	FileRouteStops = "route_stops.txt"
)

// Tables holds the raw parsed rows of every feed table. A table missing
// from the source is an empty slice, never an error: the map renders
// whatever data is available.
type Tables struct {
	Stops      []Row
	Shapes     []Row
	Trips      []Row
	Routes     []Row
	RouteStops []Row
}

// LoadDir reads the feed tables from a local directory. Individual tables
// may be absent, but the directory itself must exist.
func LoadDir(dir string) (*Tables, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("feed directory: %w", err)
	}

	t := &Tables{}
	for name, dst := range tableTargets(t) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		*dst = Parse(string(data))
	}
	return t, nil
}

// LoadZip reads the feed tables from a GTFS-style zip archive. Entry names
// are matched case-insensitively on the base name so archives with a
// top-level folder still load.
func LoadZip(r *zip.Reader) (*Tables, error) {
	t := &Tables{}
	targets := tableTargets(t)

	for _, f := range r.File {
		name := strings.ToLower(filepath.Base(f.Name))
		dst, ok := targets[name]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		*dst = Parse(string(data))
	}
	return t, nil
}

func tableTargets(t *Tables) map[string]*[]Row {
	return map[string]*[]Row{
		FileStops:      &t.Stops,
		FileShapes:     &t.Shapes,
		FileTrips:      &t.Trips,
		FileRoutes:     &t.Routes,
		FileRouteStops: &t.RouteStops,
	}
}
