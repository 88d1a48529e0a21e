package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Downloader fetches a zipped feed over HTTP.
type Downloader struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(url string, logger *slog.Logger) *Downloader {
	return &Downloader{
		url: url,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "feed_downloader"),
	}
}

// Download fetches the feed archive and returns an open zip reader along
// with the raw bytes, which callers fingerprint for cache keys.
func (d *Downloader) Download(ctx context.Context) (*zip.Reader, []byte, error) {
	start := time.Now()
	d.logger.Info("starting feed download", "url", d.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "transitmap/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("failed to download feed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, fmt.Errorf("download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Error("unexpected HTTP status", "status_code", resp.StatusCode, "status", resp.Status)
		return nil, nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		d.logger.Error("failed to open ZIP archive", "error", err)
		return nil, nil, fmt.Errorf("open zip: %w", err)
	}

	d.logger.Info("feed download completed",
		"size_mb", fmt.Sprintf("%.2f", float64(len(data))/(1024*1024)),
		"files_in_archive", len(reader.File),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)

	return reader, data, nil
}
