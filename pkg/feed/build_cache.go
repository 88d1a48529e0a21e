package feed

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Built-dataset disk cache. Re-building a large feed on every restart is
// wasted work when the raw bytes have not changed, so the Dataset is
// snapshotted to a gob+gzip file keyed by the feed fingerprint.

func CacheDir() string {
	cacheDir := os.Getenv("FEED_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "transitmap-feed-cache")
	}
	return cacheDir
}

func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cachePath(cacheDir, fingerprint string) string {
	return filepath.Join(cacheDir, fmt.Sprintf("feed_built_%s.gob.gz", fingerprint))
}

// LoadCached restores a previously built Dataset for the fingerprint. The
// returned path names the file consulted, for logging either way.
func LoadCached(cacheDir, fingerprint string) (*Dataset, string, error) {
	path := cachePath(cacheDir, fingerprint)
	f, err := os.Open(path)
	if err != nil {
		return nil, path, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, path, err
	}
	defer zr.Close()

	var ds Dataset
	if err := gob.NewDecoder(zr).Decode(&ds); err != nil {
		return nil, path, err
	}

	if ds.Stops == nil || ds.Routes == nil {
		return nil, path, fmt.Errorf("cached dataset is incomplete")
	}

	return &ds, path, nil
}

// SaveCached snapshots a built Dataset. The write goes through a temp file
// and an atomic rename so a crash cannot leave a truncated snapshot behind.
func SaveCached(cacheDir, fingerprint string, ds *Dataset) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", err
	}

	path := cachePath(cacheDir, fingerprint)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return "", err
	}

	encErr := gob.NewEncoder(zw).Encode(ds)
	closeErr := zw.Close()
	fileCloseErr := f.Close()
	if encErr != nil {
		_ = os.Remove(tmpPath)
		return "", encErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", closeErr
	}
	if fileCloseErr != nil {
		_ = os.Remove(tmpPath)
		return "", fileCloseErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}
