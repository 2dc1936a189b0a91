// Package snapshot enumerates source trees into file-level records, computes
// the delta between two enumerations and persists the mirrored source tree
// that the next build compares against.
package snapshot

import (
	"path"
	"strings"
	"time"
)

// DefaultSuffix selects Java sources.
const DefaultSuffix = ".java"

// Record is one source file. Two records denote the same source when their
// Identity matches, regardless of Path.
type Record struct {
	// Identity is the package-qualified name, e.g. "com.example.app.Main".
	Identity string `json:"identity"`
	// Path is the absolute filesystem path.
	Path string `json:"path"`
	// RelPath is the package-derived location inside a snapshot tree, e.g.
	// "com/example/app/Main.java". Empty when the file declares no package.
	RelPath string    `json:"relPath,omitempty"`
	Package string    `json:"package,omitempty"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// HasPackage reports whether a package declaration was found.
func (r Record) HasPackage() bool { return r.Package != "" }

// BaseName returns the file name up to its first dot ("Main" for
// "Main.java"); compiled outputs are matched against it.
func (r Record) BaseName() string {
	return baseName(path.Base(strings.ReplaceAll(r.Path, "\\", "/")))
}

// PackageDir returns the slash-separated package directory ("com/example/app").
func (r Record) PackageDir() string {
	return strings.ReplaceAll(r.Package, ".", "/")
}

func baseName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func identityFor(pkg, fileName, suffix string) string {
	stem := strings.TrimSuffix(fileName, suffix)
	if pkg == "" {
		return stem
	}
	return pkg + "." + stem
}

// Unique keeps one record per identity. The later record wins but the
// position of the first occurrence is kept.
func Unique(lists ...[]Record) []Record {
	pos := map[string]int{}
	var out []Record
	for _, list := range lists {
		for _, r := range list {
			if i, ok := pos[r.Identity]; ok {
				out[i] = r
				continue
			}
			pos[r.Identity] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// Identities returns the identities of recs in order.
func Identities(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Identity)
	}
	return out
}
