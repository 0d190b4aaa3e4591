// Package symbols persists per-exchange symbol catalogs and turns them into
// trading pairs.
package symbols

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// Remote serves published catalogs by name, e.g. "bittrex/symbols.json".
type Remote interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

var _ domain.CatalogStore = (*FileStore)(nil)

// FileStore keeps catalogs at {dataDir}/exchanges/{exchange}/symbols.json.
type FileStore struct {
	dataDir   string
	remote    Remote
	publisher domain.BlobWriter
	logger    *slog.Logger
}

// Option customises a FileStore.
type Option func(*FileStore)

// WithRemote lets Load seed a missing local catalog from remote.
func WithRemote(r Remote) Option {
	return func(s *FileStore) { s.remote = r }
}

// WithPublisher uploads every saved catalog to object storage under
// symbols/{exchange}/symbols.json.
func WithPublisher(w domain.BlobWriter) Option {
	return func(s *FileStore) { s.publisher = w }
}

func NewFileStore(dataDir string, logger *slog.Logger, opts ...Option) *FileStore {
	s := &FileStore{
		dataDir: dataDir,
		logger:  logger.With(slog.String("component", "symbol_catalog")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the catalog file for exchange.
func (s *FileStore) Path(exchange string) string {
	return filepath.Join(s.dataDir, "exchanges", exchange, "symbols.json")
}

// RemoteName returns the name a catalog is published and downloaded under.
func RemoteName(exchange string) string {
	return exchange + "/symbols.json"
}

// Load reads the catalog for exchange. When no local file exists it is
// downloaded from the remote, if one is configured; otherwise an empty
// catalog is returned.
func (s *FileStore) Load(ctx context.Context, exchange string) (domain.Catalog, error) {
	path := s.Path(exchange)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if s.remote == nil {
			return domain.Catalog{}, nil
		}
		data, err = s.download(ctx, exchange)
		if err != nil {
			return nil, err
		}
		if err := writeAtomic(path, data); err != nil {
			return nil, fmt.Errorf("symbols: cache %s: %w", exchange, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("symbols: read %s: %w", path, err)
	}

	cat, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("symbols: decode %s: %w", path, err)
	}
	return cat, nil
}

// Save writes the catalog with sorted keys and publishes it when a
// publisher is configured. The local write is atomic.
func (s *FileStore) Save(ctx context.Context, exchange string, catalog domain.Catalog) error {
	data, err := Encode(catalog)
	if err != nil {
		return fmt.Errorf("symbols: encode %s: %w", exchange, err)
	}
	path := s.Path(exchange)
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("symbols: write %s: %w", path, err)
	}
	s.logger.InfoContext(ctx, "symbol catalog saved",
		slog.String("exchange", exchange),
		slog.Int("symbols", len(catalog)),
		slog.String("path", path),
	)

	if s.publisher != nil {
		key := "symbols/" + RemoteName(exchange)
		if err := s.publisher.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
			return fmt.Errorf("symbols: publish %s: %w", exchange, err)
		}
		s.logger.InfoContext(ctx, "symbol catalog published", slog.String("key", key))
	}
	return nil
}

func (s *FileStore) download(ctx context.Context, exchange string) ([]byte, error) {
	s.logger.InfoContext(ctx, "downloading symbol catalog", slog.String("exchange", exchange))
	body, err := s.remote.Open(ctx, RemoteName(exchange))
	if err != nil {
		return nil, fmt.Errorf("symbols: download %s: %w", exchange, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("symbols: download %s: %w", exchange, err)
	}
	return data, nil
}

// Encode renders a catalog as two-space indented JSON with no space after
// colons, the layout published catalogs use. Symbols and entry fields are
// both emitted in sorted order, so equal catalogs encode to equal bytes.
func Encode(catalog domain.Catalog) ([]byte, error) {
	if len(catalog) == 0 {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString("{\n")
	for i, k := range keys {
		e := catalog[k]
		fields := [...][2]string{
			{"end_daily", e.EndDaily},
			{"end_minute", e.EndMinute},
			{"start_date", e.StartDate},
			{"symbol", e.Symbol},
		}
		b.WriteString("  ")
		if err := writeJSONString(&b, k); err != nil {
			return nil, err
		}
		b.WriteString(":{\n")
		for j, f := range fields {
			b.WriteString("    ")
			if err := writeJSONString(&b, f[0]); err != nil {
				return nil, err
			}
			b.WriteByte(':')
			if err := writeJSONString(&b, f[1]); err != nil {
				return nil, err
			}
			if j < len(fields)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString("  }")
		if i < len(keys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func writeJSONString(b *bytes.Buffer, s string) error {
	q, err := json.Marshal(s)
	if err != nil {
		return err
	}
	b.Write(q)
	return nil
}

// Decode parses a catalog document.
func Decode(data []byte) (domain.Catalog, error) {
	cat := domain.Catalog{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cat, nil
	}
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
