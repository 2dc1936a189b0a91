package snapshot

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ignoreSet loads .gitignore files lazily per directory during one walk.
type ignoreSet struct {
	root    string
	perDir  map[string][]gitignore.Pattern
	matcher map[string]gitignore.Matcher
}

func newIgnoreSet(root string) *ignoreSet {
	return &ignoreSet{root: root, perDir: map[string][]gitignore.Pattern{}, matcher: map[string]gitignore.Matcher{}}
}

// ancestors returns ".", "a", "a/b" for rel "a/b/c".
func ancestors(rel string) []string {
	dirs := []string{"."}
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." || dir == "" {
		return dirs
	}
	cur := ""
	for _, part := range strings.Split(dir, "/") {
		if cur == "" {
			cur = part
		} else {
			cur = cur + "/" + part
		}
		dirs = append(dirs, cur)
	}
	return dirs
}

func (s *ignoreSet) patterns(dir string) []gitignore.Pattern {
	if ps, ok := s.perDir[dir]; ok {
		return ps
	}
	var ps []gitignore.Pattern
	b, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(dir), ".gitignore"))
	if err == nil {
		var domain []string
		if dir != "." {
			domain = strings.Split(dir, "/")
		}
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ps = append(ps, gitignore.ParsePattern(line, domain))
		}
	}
	s.perDir[dir] = ps
	return ps
}

// Ignored reports whether rel (slash or OS separated, relative to root) is
// excluded by any .gitignore between root and its parent directory.
func (s *ignoreSet) Ignored(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	dirs := ancestors(rel)
	key := dirs[len(dirs)-1]
	m, ok := s.matcher[key]
	if !ok {
		var all []gitignore.Pattern
		for _, d := range dirs {
			all = append(all, s.patterns(d)...)
		}
		if len(all) > 0 {
			m = gitignore.NewMatcher(all)
		}
		s.matcher[key] = m
	}
	if m == nil {
		return false
	}
	return m.Match(strings.Split(rel, "/"), isDir)
}
