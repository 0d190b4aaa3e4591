package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func buildArchive(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Typeflag: e.typeflag, Linkname: e.linkname}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if hdr.Typeflag == tar.TypeDir {
			hdr.Mode = 0o755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveArchive(t *testing.T, name string, payload []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/"+name {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchAndExtract_Extracts(t *testing.T) {
	payload := buildArchive(t,
		tarEntry{name: "daily_bars", typeflag: tar.TypeDir},
		tarEntry{name: "daily_bars/neo_btc.csv", body: "open,close\n1,2\n"},
		tarEntry{name: "metadata.json", body: `{"version":1}`},
	)
	srv, hits := serveArchive(t, "bittrex-daily-neo_btc-2017.tar.gz", payload)

	root := t.TempDir()
	f := NewFetcher(NewHTTPSource(srv.URL, 5*time.Second), root, discardLogger())
	chunk := Chunk{Exchange: "bittrex", Frequency: domain.FrequencyDaily, Symbol: "neo_btc", Period: "2017"}

	dest, err := f.FetchChunk(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bittrex-daily-neo_btc-2017"), dest)

	data, err := os.ReadFile(filepath.Join(dest, "daily_bars", "neo_btc.csv"))
	require.NoError(t, err)
	assert.Equal(t, "open,close\n1,2\n", string(data))

	_, err = f.FetchChunk(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	leftovers, err := filepath.Glob(filepath.Join(root, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetchAndExtract_ConcurrentCallsShareDownload(t *testing.T) {
	payload := buildArchive(t, tarEntry{name: "a.txt", body: "a"})
	srv, hits := serveArchive(t, "x.tar.gz", payload)

	f := NewFetcher(NewHTTPSource(srv.URL, 5*time.Second), t.TempDir(), discardLogger())
	dest := filepath.Join(t.TempDir(), "x")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.FetchAndExtract(context.Background(), "x.tar.gz", dest)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(1))
	assert.FileExists(t, filepath.Join(dest, "a.txt"))
}

func TestFetchAndExtract_RejectsTraversal(t *testing.T) {
	cases := map[string][]tarEntry{
		"dot dot entry": {
			{name: "good.txt", body: "ok"},
			{name: "../../evil", body: "pwned"},
		},
		"absolute entry": {
			{name: "/tmp/evil", body: "pwned"},
		},
		"escaping symlink": {
			{name: "link", typeflag: tar.TypeSymlink, linkname: "../../evil"},
		},
		"escaping hardlink": {
			{name: "link", typeflag: tar.TypeLink, linkname: "../outside"},
		},
		"chained symlinks": {
			{name: "d", typeflag: tar.TypeSymlink, linkname: "."},
			{name: "l", typeflag: tar.TypeSymlink, linkname: "d/.."},
			{name: "l/evil", body: "pwned"},
		},
		"entry through symlink": {
			{name: "d", typeflag: tar.TypeSymlink, linkname: "."},
			{name: "d/evil", body: "pwned"},
		},
		"hardlink through symlink": {
			{name: "sub", typeflag: tar.TypeDir},
			{name: "s", typeflag: tar.TypeSymlink, linkname: "sub"},
			{name: "h", typeflag: tar.TypeLink, linkname: "s/x"},
		},
	}

	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			payload := buildArchive(t, entries...)
			srv, _ := serveArchive(t, "bad.tar.gz", payload)

			base := t.TempDir()
			dest := filepath.Join(base, "root", "bundle")
			f := NewFetcher(NewHTTPSource(srv.URL, 5*time.Second), base, discardLogger())

			_, err := f.FetchAndExtract(context.Background(), "bad.tar.gz", dest)
			var traversal *domain.PathTraversalError
			require.True(t, errors.As(err, &traversal), "got %v", err)

			assert.NoFileExists(t, filepath.Join(base, "evil"))
			assert.NoDirExists(t, dest)
			_, statErr := os.Stat(filepath.Join(dest, "good.txt"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestFetchAndExtract_KeepsInternalSymlinks(t *testing.T) {
	payload := buildArchive(t,
		tarEntry{name: "data/a.csv", body: "1,2\n"},
		tarEntry{name: "latest.csv", typeflag: tar.TypeSymlink, linkname: "data/a.csv"},
	)
	srv, _ := serveArchive(t, "ok.tar.gz", payload)

	dest := filepath.Join(t.TempDir(), "bundle")
	f := NewFetcher(NewHTTPSource(srv.URL, 5*time.Second), t.TempDir(), discardLogger())
	_, err := f.FetchAndExtract(context.Background(), "ok.tar.gz", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "latest.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(data))
}

func TestExtractAll_StaysInsideRoot(t *testing.T) {
	payload := buildArchive(t,
		tarEntry{name: "d", typeflag: tar.TypeSymlink, linkname: "."},
		tarEntry{name: "l", typeflag: tar.TypeSymlink, linkname: "d/.."},
		tarEntry{name: "l/evil", body: "pwned"},
	)
	base := t.TempDir()
	stage := filepath.Join(base, "root", "stage")
	require.NoError(t, os.MkdirAll(stage, 0o755))

	err := extractAll(payload, stage)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(base, "root", "evil"))
	assert.NoFileExists(t, filepath.Join(stage, "evil"))
}

func TestFetchAndExtract_HTTPFailure(t *testing.T) {
	srv, _ := serveArchive(t, "exists.tar.gz", nil)
	f := NewFetcher(NewHTTPSource(srv.URL, 5*time.Second), t.TempDir(), discardLogger())

	_, err := f.FetchAndExtract(context.Background(), "missing.tar.gz", filepath.Join(t.TempDir(), "m"))
	var dl *domain.DownloadError
	require.True(t, errors.As(err, &dl))
	assert.Equal(t, http.StatusNotFound, dl.StatusCode)
	assert.Equal(t, srv.URL+"/missing.tar.gz", dl.URL)
}

type stubLocks struct {
	mu    sync.Mutex
	held  map[string]bool
	calls int
}

func (s *stubLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.held[key] {
		return nil, domain.ErrLockHeld
	}
	s.held[key] = true
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.held, key)
	}, nil
}

func TestFetchAndExtract_TakesLock(t *testing.T) {
	payload := buildArchive(t, tarEntry{name: "a.txt", body: "a"})
	srv, _ := serveArchive(t, "x.tar.gz", payload)

	locks := &stubLocks{held: map[string]bool{}}
	f := NewFetcher(NewHTTPSource(srv.URL, 5*time.Second), t.TempDir(), discardLogger(), WithLocks(locks, time.Minute))
	dest := filepath.Join(t.TempDir(), "x")

	_, err := f.FetchAndExtract(context.Background(), "x.tar.gz", dest)
	require.NoError(t, err)
	assert.Equal(t, 1, locks.calls)
	assert.Empty(t, locks.held)
}

func TestFetchAndExtract_LockWaitHonoursContext(t *testing.T) {
	locks := &stubLocks{held: map[string]bool{}}
	dest := filepath.Join(t.TempDir(), "x")
	locks.held["bundle:"+dest] = true

	f := NewFetcher(NewHTTPSource("http://127.0.0.1:1", time.Second), t.TempDir(), discardLogger(), WithLocks(locks, time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.FetchAndExtract(ctx, "x.tar.gz", dest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
