// Package archive downloads NBM source files from the NOMADS HTTP archive
// into a local date/cycle-keyed cache.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/observability"
)

// DefaultBaseURL is the production NOMADS blend archive root.
const DefaultBaseURL = "https://nomads.ncep.noaa.gov/pub/data/nccf/com/blend/prod"

// maxAttempts is the fixed retry budget for transient download failures.
const maxAttempts = 3

// StatusError is a non-2xx response from the archive. 5xx responses are
// retryable; 4xx (typically a file not yet published) are permanent.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive returned status %d for %s", e.Code, e.URL)
}

// Retryable reports whether the failure is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}

// Fetcher resolves source coordinates to archive URLs and maintains the
// local download cache. Safe for sequential use within one run; concurrent
// runs may share a cache directory because in-progress downloads live under
// process-unique temporary names.
type Fetcher struct {
	baseURL string
	dir     string
	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFetcher creates a Fetcher caching under dir. timeout bounds each HTTP
// request including body streaming.
func NewFetcher(baseURL, dir string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		dir:     dir,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch returns a local copy of the coordinate's source file, downloading at
// most once per cache path. A file at the destination path is always
// complete: downloads stream to a temporary file that is renamed into place
// only on full success.
func (f *Fetcher) Fetch(ctx context.Context, coord domain.SourceCoordinate) (string, error) {
	dest := filepath.Join(f.dir, coord.CachePath())
	if _, err := os.Stat(dest); err == nil {
		f.metrics.CacheHits.Inc()
		f.logger.Debug("using cached file", "path", dest)
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	url := coord.DownloadURL(f.baseURL)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		n, err := f.download(ctx, url, dest)
		if err == nil {
			f.metrics.BytesDownloaded.Add(float64(n))
			f.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
			f.logger.Debug("downloaded file", "url", url, "bytes", n, "attempt", attempt)
			return dest, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return "", err
		}
		lastErr = err
		if attempt < maxAttempts {
			f.metrics.DownloadRetries.Inc()
			f.logger.Warn("download attempt failed, retrying",
				"url", url, "attempt", attempt, "error", err)
		}
	}
	return "", fmt.Errorf("download %s: %w", url, lastErr)
}

// download streams one attempt to a temporary file and renames it into
// place. On any failure the temporary file is removed and dest is untouched.
func (f *Fetcher) download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{Code: resp.StatusCode, URL: url}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("stream body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}
