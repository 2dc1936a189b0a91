package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultResolverEntries = 4096

// package com.acme.foo;
var rePackageDecl = regexp.MustCompile(`^\s*package\s+([A-Za-z0-9_.]+)\s*;`)

type pkgEntry struct {
	pkg string
}

// Resolver reads package declarations and caches them by path, size and
// modification time, so unchanged files are read once per process.
type Resolver struct {
	cache *lru.Cache[string, pkgEntry]
}

// NewResolver returns a resolver caching up to size entries.
func NewResolver(size int) *Resolver {
	if size <= 0 {
		size = defaultResolverEntries
	}
	c, err := lru.New[string, pkgEntry](size)
	if err != nil {
		return &Resolver{}
	}
	return &Resolver{cache: c}
}

// Package returns the declared package of the source at p, or "" when the
// file has no package declaration.
func (r *Resolver) Package(p string, info os.FileInfo) (string, error) {
	key := ""
	if r != nil && r.cache != nil && info != nil {
		key = fmt.Sprintf("%s|%d|%d", p, info.Size(), info.ModTime().UnixNano())
		if e, ok := r.cache.Get(key); ok {
			return e.pkg, nil
		}
	}
	pkg, err := ReadPackage(p)
	if err != nil {
		return "", err
	}
	if key != "" {
		r.cache.Add(key, pkgEntry{pkg: pkg})
	}
	return pkg, nil
}

// Len reports the number of cached entries.
func (r *Resolver) Len() int {
	if r == nil || r.cache == nil {
		return 0
	}
	return r.cache.Len()
}

// ReadPackage reads p line by line until the first package declaration.
func ReadPackage(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for s.Scan() {
		if m := rePackageDecl.FindStringSubmatch(s.Text()); m != nil {
			return m[1], nil
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// PackagePath returns the package-qualified relative path for the source at
// p ("com/example/app/Main.java"). ok is false when no package is declared.
func PackagePath(p string) (rel string, ok bool, err error) {
	pkg, err := ReadPackage(p)
	if err != nil || pkg == "" {
		return "", false, err
	}
	return packageRelPath(pkg, filepath.Base(p)), true, nil
}

func packageRelPath(pkg, fileName string) string {
	return strings.ReplaceAll(pkg, ".", "/") + "/" + fileName
}
