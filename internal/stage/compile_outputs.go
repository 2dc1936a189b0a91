package stage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// deleteClassOutputs removes every compiled file whose name, cut at the
// first '.' and then at the first '$', equals base. With a known pkgDir only
// that package directory is searched, so same-named classes in other
// packages survive; this is narrower than a sweep of the whole output tree.
// Without one the whole classesRoot is walked.
func deleteClassOutputs(classesRoot, pkgDir, base string) ([]string, error) {
	if pkgDir == "" {
		return deleteMatchingUnder(classesRoot, base)
	}
	dir := filepath.Join(classesRoot, filepath.FromSlash(pkgDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if e.IsDir() || outputBaseName(e.Name()) != base {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

func deleteMatchingUnder(root, base string) ([]string, error) {
	if !dirExists(root) {
		return nil, nil
	}
	var removed []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || outputBaseName(d.Name()) != base {
			return nil
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed = append(removed, p)
		return nil
	})
	return removed, err
}

// outputBaseName maps "Main$Inner$1.class" to "Main".
func outputBaseName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '$'); i >= 0 {
		name = name[:i]
	}
	return name
}
