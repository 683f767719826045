package lsx

import (
	"context"
	"fmt"
	"log/slog"
	"mime"

	"github.com/FACorreiaa/lsx-collector/pkg/metrics"
	"github.com/FACorreiaa/lsx-collector/pkg/storage"
)

// Download kinds, used as metric labels.
const (
	KindReport = "report"
	KindTrades = "trades"
)

// Downloader stores remote files under a name unless that name is already stored.
type Downloader struct {
	client  *Client
	store   storage.Storage
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDownloader creates a downloader writing to store.
func NewDownloader(client *Client, store storage.Storage, m *metrics.Metrics, logger *slog.Logger) *Downloader {
	return &Downloader{client: client, store: store, metrics: m, logger: logger}
}

// Download fetches rawURL into name. It reports false without a request when name exists.
func (d *Downloader) Download(ctx context.Context, kind, rawURL, name string) (bool, error) {
	exists, err := d.store.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		d.metrics.Downloads.WithLabelValues(kind, metrics.StatusSkipped).Inc()
		return false, nil
	}

	resp, err := d.client.Get(ctx, rawURL)
	if err != nil {
		d.metrics.Downloads.WithLabelValues(kind, metrics.StatusFailed).Inc()
		return false, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	info, err := d.store.Put(ctx, name, resp.Body, storage.Meta{ContentType: contentType, SourceURL: rawURL})
	if err != nil {
		d.metrics.Downloads.WithLabelValues(kind, metrics.StatusFailed).Inc()
		return false, fmt.Errorf("failed to store %s: %w", name, err)
	}

	d.metrics.Downloads.WithLabelValues(kind, metrics.StatusDownloaded).Inc()
	d.logger.Info("downloaded",
		slog.String("url", rawURL),
		slog.String("name", info.Name),
		slog.Int64("bytes", info.Size),
	)
	return true, nil
}
