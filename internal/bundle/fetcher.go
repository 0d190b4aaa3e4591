// Package bundle retrieves historical data bundles: it resolves which window
// of history can be served for a set of assets, plans the archive chunks
// covering it, and safely downloads and extracts them.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// Source serves archive payloads by file name.
type Source interface {
	// Open returns the archive called name. Failures are *domain.DownloadError.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// HTTPSource downloads archives from {BaseURL}/{name}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates an HTTPSource. A zero timeout leaves the client
// without one.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// URL returns the address an archive is served from.
func (s *HTTPSource) URL(name string) string {
	return s.baseURL + "/" + name
}

// Open issues a GET for the archive and returns the body on a 2xx response.
func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	u := s.URL(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &domain.DownloadError{URL: u, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.DownloadError{URL: u, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &domain.DownloadError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Fetcher downloads archives from a Source and extracts them below a root
// directory. A directory that already exists is treated as fully populated:
// extraction happens in a temporary sibling that is renamed into place only
// once every entry is written.
type Fetcher struct {
	source  Source
	rootDir string
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
	flight  singleflight.Group
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithLocks serialises extraction of the same directory across processes.
func WithLocks(locks domain.LockManager, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.locks = locks
		f.lockTTL = ttl
	}
}

// NewFetcher creates a Fetcher writing below rootDir.
func NewFetcher(source Source, rootDir string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:  source,
		rootDir: rootDir,
		lockTTL: 10 * time.Minute,
		logger:  logger.With(slog.String("component", "bundle_fetcher")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchChunk makes chunk available locally and returns its directory.
func (f *Fetcher) FetchChunk(ctx context.Context, chunk Chunk) (string, error) {
	return f.FetchAndExtract(ctx, chunk.ArchiveName(), filepath.Join(f.rootDir, chunk.Name()))
}

// FetchAndExtract downloads the archive called name and extracts it into
// dest, returning dest. It does nothing when dest already exists. Concurrent
// calls for the same dest share one download.
func (f *Fetcher) FetchAndExtract(ctx context.Context, name, dest string) (string, error) {
	dest = filepath.Clean(dest)
	_, err, _ := f.flight.Do(dest, func() (any, error) {
		return nil, f.fetch(ctx, name, dest)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (f *Fetcher) fetch(ctx context.Context, name, dest string) error {
	if populated(dest) {
		f.logger.DebugContext(ctx, "bundle already present", slog.String("path", dest))
		return nil
	}

	if f.locks != nil {
		unlock, err := f.lock(ctx, dest)
		if err != nil {
			return err
		}
		defer unlock()
		if populated(dest) {
			return nil
		}
	}

	f.logger.InfoContext(ctx, "downloading bundle",
		slog.String("archive", name),
		slog.String("dest", dest),
	)

	payload, err := f.download(ctx, name)
	if err != nil {
		return err
	}

	if err := checkEntries(payload, dest); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("bundle: create root: %w", err)
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("bundle: create staging dir: %w", err)
	}
	if err := extractAll(payload, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("bundle: move into place: %w", err)
	}

	f.logger.InfoContext(ctx, "bundle extracted",
		slog.String("dest", dest),
		slog.Int("bytes", len(payload)),
	)
	return nil
}

// download reads the whole archive before any extraction starts.
func (f *Fetcher) download(ctx context.Context, name string) ([]byte, error) {
	body, err := f.source.Open(ctx, name)
	if err != nil {
		var dlErr *domain.DownloadError
		if errors.As(err, &dlErr) {
			return nil, err
		}
		return nil, &domain.DownloadError{URL: name, Err: err}
	}
	defer body.Close()

	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, &domain.DownloadError{URL: name, Err: err}
	}
	return payload, nil
}

// lock waits for the cross-process lock on dest. If dest appears while
// waiting, a no-op unlock is returned.
func (f *Fetcher) lock(ctx context.Context, dest string) (func(), error) {
	for {
		unlock, err := f.locks.Acquire(ctx, "bundle:"+dest, f.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("bundle: lock %s: %w", dest, err)
		}

		timer := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if populated(dest) {
			return func() {}, nil
		}
	}
}

func populated(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
