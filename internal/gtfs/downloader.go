package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Downloader fetches GTFS zip archives with conditional requests.
type Downloader struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

// NewDownloader creates a Downloader for the given GTFS URL. The whole
// download is bounded by a fixed timeout; an overrun is abandoned and
// reported as a failure.
func NewDownloader(url string, logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: 60 * time.Second},
		url:    url,
		logger: logger,
	}
}

// Fetch downloads the feed archive. If etag matches the server's current
// representation the server answers 304 and Fetch reports notModified
// with no body.
func (d *Downloader) Fetch(ctx context.Context, etag string) (data []byte, newETag string, notModified bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", d.url, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("create request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	d.logger.Info("downloading GTFS feed", "url", d.url)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", false, fmt.Errorf("GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		d.logger.Info("GTFS feed not modified")
		return nil, etag, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", false, fmt.Errorf("read body: %w", err)
	}

	d.logger.Info("GTFS feed downloaded",
		"size_mb", fmt.Sprintf("%.1f", float64(len(data))/(1024*1024)),
	)
	return data, resp.Header.Get("ETag"), false, nil
}
