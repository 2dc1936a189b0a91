package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/flarebyte/apk-forge/internal/apkzip"
)

// PackageStage assembles bin/gen.apk from the linked resources, every dex
// output and the non-class resources of each library jar. The archive is
// left unsigned.
type PackageStage struct {
	status
	env     Env
	entries []string
}

func NewPackageStage(env Env) *PackageStage {
	return &PackageStage{status: status{name: NamePackage}, env: env}
}

// Entries returns the archive entry names written by the last Run.
func (s *PackageStage) Entries() []string { return append([]string(nil), s.entries...) }

func (s *PackageStage) Prepare(ctx context.Context) error {
	s.reset()
	s.entries = nil
	cfg := s.env.Config
	for _, p := range []string{cfg.LinkedResources(), cfg.PrimaryDex()} {
		if !fileExists(p) {
			return ioError(s.name, fmt.Errorf("missing input %s", p))
		}
	}
	return nil
}

func (s *PackageStage) Run(ctx context.Context) error {
	cfg := s.env.Config
	log := s.env.log()
	s.env.progress(s.name, "Packaging APK...")
	tmp := cfg.ArchivePath() + ".tmp"
	w, err := apkzip.Create(tmp)
	if err != nil {
		return ioError(s.name, err)
	}
	if err := s.fill(w); err != nil {
		w.Abort()
		return ioError(s.name, err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(tmp)
		return ioError(s.name, err)
	}
	if err := os.Rename(tmp, cfg.ArchivePath()); err != nil {
		return ioError(s.name, err)
	}
	for _, dup := range w.Skipped() {
		log.Warn(s.name, "duplicate entry skipped: "+dup)
	}
	s.entries = w.Names()
	log.Debug(s.name, "wrote "+cfg.ArchivePath()+" ("+strconv.Itoa(len(s.entries))+" entries)")
	return nil
}

func (s *PackageStage) fill(w *apkzip.Writer) error {
	cfg := s.env.Config
	log := s.env.log()
	if _, err := w.AddArchive(cfg.LinkedResources(), nil); err != nil {
		return err
	}
	dexes, err := dexFiles(cfg.BinDir())
	if err != nil {
		return err
	}
	for _, p := range dexes {
		name := filepath.Base(p)
		if name != "classes.dex" {
			log.Debug(s.name, "Adding dex file "+name+" to APK.")
		}
		if err := w.AddFile(name, p); err != nil {
			return err
		}
	}
	for _, lib := range cfg.Project.Libraries {
		if !fileExists(lib.ClassesJar) {
			continue
		}
		n, err := w.AddArchive(lib.ClassesJar, apkzip.LibraryResource)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Debug(s.name, "Adding resources of "+lib.Name+" to the APK ("+strconv.Itoa(n)+" entries)")
		}
	}
	return nil
}

func init() {
	Register(NamePackage, func(env Env) Stage { return NewPackageStage(env) })
}
