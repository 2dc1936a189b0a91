package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flarebyte/apk-forge/internal/luafilter"
)

// Options controls one enumeration.
type Options struct {
	// Suffix selects files by name suffix; DefaultSuffix when empty.
	Suffix string
	// Gitignore excludes paths matched by .gitignore files under the root.
	Gitignore bool
	// Filter, when set, must return true for a file to be kept.
	Filter *luafilter.Predicate
	// Resolver reads package declarations; a private one is used when nil.
	Resolver *Resolver
}

func (o Options) suffix() string {
	if o.Suffix == "" {
		return DefaultSuffix
	}
	return o.Suffix
}

// Index enumerates every file under root whose name ends with the configured
// suffix. A missing root yields no records. Records come back in lexical
// path order with one record per identity, the later file winning.
func Index(root string, opts Options) ([]Record, error) {
	if root == "" {
		return nil, nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if st, err := os.Stat(absRoot); err != nil || !st.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(0)
	}
	suffix := opts.suffix()
	var ignores *ignoreSet
	if opts.Gitignore {
		ignores = newIgnoreSet(absRoot)
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == absRoot {
			return nil
		}
		if ignores != nil {
			rel, err := filepath.Rel(absRoot, p)
			if err != nil {
				return err
			}
			if ignores.Ignored(rel, d.IsDir()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	recs := make([]Record, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		pkg, err := resolver.Package(p, info)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		rec := Record{
			Identity: identityFor(pkg, name, suffix),
			Path:     p,
			Package:  pkg,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}
		if pkg != "" {
			rec.RelPath = packageRelPath(pkg, name)
		}
		if opts.Filter != nil {
			rel, _ := filepath.Rel(absRoot, p)
			ok, err := opts.Filter.Match(map[string]any{
				"path":     filepath.ToSlash(rel),
				"identity": rec.Identity,
				"package":  pkg,
				"name":     name,
				"size":     rec.Size,
			})
			if err != nil {
				return nil, fmt.Errorf("source filter %s: %w", filepath.ToSlash(rel), err)
			}
			if !ok {
				continue
			}
		}
		recs = append(recs, rec)
	}
	return Unique(recs), nil
}
