package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

var gzipMagic = []byte{0x1f, 0x8b}

// openTar returns a tar reader over payload, transparently gunzipping it.
func openTar(payload []byte) (*tar.Reader, error) {
	var r io.Reader = bytes.NewReader(payload)
	if bytes.HasPrefix(payload, gzipMagic) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("bundle: open gzip: %w", err)
		}
		r = gz
	}
	return tar.NewReader(r), nil
}

// resolveEntry walks the slash-separated path p starting at the archive
// directory base and returns the cleaned path relative to the archive root.
// It fails when p climbs above the root or passes through one of links,
// the symlinks declared earlier in the archive.
func resolveEntry(base, p string, links map[string]bool) (string, bool) {
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return "", false
	}
	var parts []string
	if base != "" && base != "." {
		parts = strings.Split(base, "/")
	}
	for _, c := range strings.Split(p, "/") {
		switch c {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", false
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, c)
			if links[strings.Join(parts, "/")] {
				return "", false
			}
		}
	}
	return strings.Join(parts, "/"), true
}

// checkEntries walks every entry of the archive and fails on the first one
// that would land outside dest, either directly or through a symlink the
// archive itself creates. Nothing is written.
func checkEntries(payload []byte, dest string) error {
	tr, err := openTar(payload)
	if err != nil {
		return err
	}
	links := make(map[string]bool)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
			return &domain.PathTraversalError{Entry: hdr.Name, Dest: dest}
		}
		if err != nil {
			return fmt.Errorf("bundle: read archive: %w", err)
		}

		name, ok := resolveEntry("", hdr.Name, links)
		if !ok || (name == "" && hdr.Typeflag != tar.TypeDir) {
			return &domain.PathTraversalError{Entry: hdr.Name, Dest: dest}
		}

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			if _, ok := resolveEntry(path.Dir(name), hdr.Linkname, links); !ok {
				return &domain.PathTraversalError{Entry: hdr.Name + " -> " + hdr.Linkname, Dest: dest}
			}
			links[name] = true
		case tar.TypeLink:
			if _, ok := resolveEntry("", hdr.Linkname, links); !ok {
				return &domain.PathTraversalError{Entry: hdr.Name + " -> " + hdr.Linkname, Dest: dest}
			}
		}
	}
}

// extractAll writes the archive below dir. Entries must have been vetted
// with checkEntries first; every filesystem call also goes through an
// os.Root, so no entry can be resolved outside dir.
func extractAll(payload []byte, dir string) error {
	tr, err := openTar(payload)
	if err != nil {
		return err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("bundle: open staging dir: %w", err)
	}
	defer root.Close()

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bundle: read archive: %w", err)
		}

		name := filepath.FromSlash(path.Clean(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if name == "." {
				continue
			}
			if err := root.MkdirAll(name, 0o755); err != nil {
				return fmt.Errorf("bundle: mkdir %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(root, name, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("bundle: write %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := mkdirParent(root, name); err != nil {
				return fmt.Errorf("bundle: mkdir for %s: %w", hdr.Name, err)
			}
			if err := root.Symlink(hdr.Linkname, name); err != nil {
				return fmt.Errorf("bundle: symlink %s: %w", hdr.Name, err)
			}
		case tar.TypeLink:
			if err := root.Link(filepath.FromSlash(path.Clean(hdr.Linkname)), name); err != nil {
				return fmt.Errorf("bundle: link %s: %w", hdr.Name, err)
			}
		}
	}
}

func mkdirParent(root *os.Root, name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	return root.MkdirAll(dir, 0o755)
}

func writeFile(root *os.Root, name string, r io.Reader, perm os.FileMode) error {
	if err := mkdirParent(root, name); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
