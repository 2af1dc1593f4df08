package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

type Downloader struct {
	source string
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(source string, logger *slog.Logger) *Downloader {
	return &Downloader{
		source: source,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "gtfs_downloader"),
	}
}

// IsRemote reports whether the source is fetched over HTTP rather than read from disk
func (d *Downloader) IsRemote() bool {
	return strings.HasPrefix(d.source, "http://") || strings.HasPrefix(d.source, "https://")
}

// Fetch returns the raw GTFS archive from a URL or a local path
func (d *Downloader) Fetch(ctx context.Context) ([]byte, error) {
	if !d.IsRemote() {
		data, err := os.ReadFile(d.source)
		if err != nil {
			return nil, fmt.Errorf("read gtfs file: %w", err)
		}
		d.logger.Info("GTFS read from disk", "path", d.source, "size_bytes", len(data))
		return data, nil
	}
	return d.download(ctx)
}

func (d *Downloader) download(ctx context.Context) ([]byte, error) {
	start := time.Now()
	d.logger.Info("starting GTFS download",
		"url", d.source,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.source, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "transitcat/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("failed to download GTFS",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("download gtfs: %w", err)
	}
	defer resp.Body.Close()

	d.logger.Debug("received HTTP response",
		"status_code", resp.StatusCode,
		"content_length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	d.logger.Info("GTFS download completed",
		"size_mb", fmt.Sprintf("%.2f", float64(len(data))/(1024*1024)),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)

	return data, nil
}
