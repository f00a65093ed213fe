// Package transfer downloads catalog products to disk with retry,
// resume and free-space checks.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// DefaultMinFreeBytes refuses downloads when the target filesystem has
// less than this much space left.
const DefaultMinFreeBytes = 256 << 20

const maxRetries = 3

// Downloader streams files to disk. Retries are exponential; a download
// in progress writes to a .part sibling and renames on success so a
// partial write never masquerades as a finished tile.
type Downloader struct {
	Client       *http.Client
	Log          *slog.Logger
	MinFreeBytes uint64
}

func NewDownloader(log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{
		Client:       &http.Client{},
		Log:          log,
		MinFreeBytes: DefaultMinFreeBytes,
	}
}

// Fetch downloads rawURL to dest. An existing dest is reused so reruns
// against the same output directory resume instead of re-downloading.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		d.Log.Info("found existing file, skipping download", "path", dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	if err := checkFreeSpace(filepath.Dir(dest), d.MinFreeBytes); err != nil {
		return err
	}

	attempt := func() error {
		return d.download(ctx, rawURL, dest)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("%w: %s: %v", usgserr.ErrConnectionFailed, rawURL, err)
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", usgserr.ErrMalformedURL, err))
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error %s", resp.Status)
	default:
		// 4xx will not improve on retry.
		return backoff.Permanent(fmt.Errorf("unexpected status %s", resp.Status))
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create %s: %w", part, err))
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return fmt.Errorf("write %s: %w", part, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("close %s: %w", part, err)
	}
	return os.Rename(part, dest)
}
