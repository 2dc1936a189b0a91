package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the mirrored source tree kept between builds, laid out by package
// path so that each identity maps to exactly one file.
type Store struct {
	Root string
}

// Path returns where rec is mirrored. ok is false when rec has no package.
func (s Store) Path(rec Record) (string, bool) {
	if rec.RelPath == "" {
		return "", false
	}
	return filepath.Join(s.Root, filepath.FromSlash(rec.RelPath)), true
}

// Load enumerates the stored snapshot. The store root is never gitignore
// filtered.
func (s Store) Load(suffix string, r *Resolver) ([]Record, error) {
	return Index(s.Root, Options{Suffix: suffix, Resolver: r})
}

// Put copies rec into the store. Records without a package are skipped and
// reported with ok=false.
func (s Store) Put(rec Record) (bool, error) {
	dst, ok := s.Path(rec)
	if !ok {
		return false, nil
	}
	if err := copyFile(rec.Path, dst); err != nil {
		return false, fmt.Errorf("snapshot %s: %w", rec.Identity, err)
	}
	return true, nil
}

// Remove deletes the stored copy of rec. Missing files are not an error.
func (s Store) Remove(rec Record) error {
	p := rec.Path
	if rel, ok := s.Path(rec); ok {
		p = rel
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
