// Package apkzip writes application archives. Entries taken from existing
// archives are copied raw, without recompression.
package apkzip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FixedTime is stamped on entries added from loose files (1980-01-01 UTC).
var FixedTime = time.Unix(315532800, 0).UTC()

// Writer assembles one archive. The first entry written under a name wins;
// later duplicates are skipped and recorded.
type Writer struct {
	f       *os.File
	zw      *zip.Writer
	names   map[string]struct{}
	skipped []string
	order   []string
}

// Create truncates p and starts a new archive.
func Create(p string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, zw: zip.NewWriter(f), names: map[string]struct{}{}}, nil
}

// SanitizePath normalizes an entry name: forward slashes, no drive, no
// leading slash and no "." or ".." segments.
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	stack := make([]string, 0, 8)
	for _, part := range strings.Split(s, "/") {
		switch part {
		case "", ".":
		case "..":
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return strings.Join(stack, "/")
}

func (w *Writer) claim(name string) bool {
	if _, ok := w.names[name]; ok {
		w.skipped = append(w.skipped, name)
		return false
	}
	w.names[name] = struct{}{}
	w.order = append(w.order, name)
	return true
}

// AddFile stores the file at src under name. Dex files are deflated like any
// other entry.
func (w *Writer) AddFile(name, src string) error {
	name = SanitizePath(name)
	if name == "" {
		return fmt.Errorf("add %s: empty entry name", src)
	}
	if !w.claim(name) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	defer func() { _ = in.Close() }()
	h := &zip.FileHeader{Name: name, Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = FixedTime
	out, err := w.zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// AddArchive copies every entry of the archive at src accepted by keep. A
// nil keep accepts all file entries. Directory entries are never copied.
func (w *Writer) AddArchive(src string, keep func(name string) bool) (int, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = r.Close() }()
	n := 0
	for _, e := range r.File {
		if strings.HasSuffix(e.Name, "/") {
			continue
		}
		if keep != nil && !keep(e.Name) {
			continue
		}
		if !w.claim(e.Name) {
			continue
		}
		if err := w.zw.Copy(e); err != nil {
			return n, fmt.Errorf("copy %s!%s: %w", filepath.Base(src), e.Name, err)
		}
		n++
	}
	return n, nil
}

// Names returns entry names in write order.
func (w *Writer) Names() []string { return append([]string(nil), w.order...) }

// Skipped returns duplicate names that were not written.
func (w *Writer) Skipped() []string { return append([]string(nil), w.skipped...) }

// Close seals the archive.
func (w *Writer) Close() error {
	zerr := w.zw.Close()
	ferr := w.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}

// Abort closes and removes a partially written archive.
func (w *Writer) Abort() {
	_ = w.zw.Close()
	name := w.f.Name()
	_ = w.f.Close()
	_ = os.Remove(name)
}

// LibraryResource reports whether a classes jar entry belongs in the final
// archive: everything except compiled classes, manifests and signature files.
func LibraryResource(name string) bool {
	if strings.HasSuffix(name, ".class") {
		return false
	}
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "META-INF/") {
		base := path.Base(upper)
		if base == "MANIFEST.MF" {
			return false
		}
		switch path.Ext(base) {
		case ".SF", ".RSA", ".DSA", ".EC":
			return false
		}
	}
	return true
}
