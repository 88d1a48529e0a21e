package ingestor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"transitmap/internal/config"
	"transitmap/internal/store"
)

func writeFeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"stops.txt":  "stop_id,stop_name,stop_lat,stop_lon\n1,Central,52.22,21.0\n2,Harbor,52.23,21.0\n",
		"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\ns1,52.20,21.0,1\ns1,52.25,21.0,2\n",
		"routes.txt": "route_id,route_short_name\nr1,10\n",
		"trips.txt":  "trip_id,route_id,shape_id\nt1,r1,s1\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestIngestorLoadsDirectoryFeed(t *testing.T) {
	manifest := &config.Manifest{
		Feed: config.FeedSource{Dir: writeFeedDir(t)},
	}
	st := store.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ing := New(manifest, st, time.Hour, logger)

	var updates atomic.Int32
	ing.SetOnUpdate(func(context.Context) {
		updates.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !ing.IsReady() {
		time.Sleep(5 * time.Millisecond)
	}
	if !ing.IsReady() {
		t.Fatal("ingestor never became ready")
	}

	stats := st.GetStats()
	if stats.StopsCount != 2 || stats.RoutesCount != 1 || stats.ShapesCount != 1 {
		t.Errorf("stats after ingest = %+v", stats)
	}
	if stats.AssociatedStops != 2 {
		t.Errorf("associated stops = %d, want both on the shape", stats.AssociatedStops)
	}
	if updates.Load() == 0 {
		t.Errorf("onUpdate callback never fired")
	}
}

func TestIngestorMissingDirectoryStaysNotReady(t *testing.T) {
	manifest := &config.Manifest{
		Feed: config.FeedSource{Dir: filepath.Join(t.TempDir(), "absent")},
	}
	st := store.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ing := New(manifest, st, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if ing.IsReady() {
		t.Errorf("ingestor ready despite failed load")
	}
	if st.GetStats().StopsCount != 0 {
		t.Errorf("store populated from a missing directory")
	}
}
