package stage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/procexec"
)

// ResourceStage compiles every resource root with aapt2 and links the
// results into the linked resource package plus generated R sources.
type ResourceStage struct {
	status
	env     Env
	pending []config.Library
	cached  []string
}

func NewResourceStage(env Env) *ResourceStage {
	return &ResourceStage{status: status{name: NameResources}, env: env}
}

// Prepare clears bin/ except the compiled resource cache and selects the
// libraries whose archive is not cached yet.
func (s *ResourceStage) Prepare(ctx context.Context) error {
	s.reset()
	cfg := s.env.Config
	s.env.progress(s.name, "Preparing resources")
	if err := clearExcept(cfg.BinDir(), config.ResCacheDirName); err != nil {
		return ioError(s.name, err)
	}
	for _, dir := range []string{cfg.ResCacheDir(), cfg.GenDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ioError(s.name, err)
		}
	}
	s.pending, s.cached = nil, nil
	for _, lib := range cfg.Project.Libraries {
		if fileExists(cfg.LibraryResArchive(lib)) {
			s.cached = append(s.cached, lib.Name)
			s.env.progress(s.name, "Skipping cached library "+lib.Name)
			continue
		}
		s.pending = append(s.pending, lib)
	}
	return nil
}

// Pending returns the libraries that Run will compile.
func (s *ResourceStage) Pending() []string {
	out := make([]string, 0, len(s.pending))
	for _, l := range s.pending {
		out = append(out, l.Name)
	}
	return out
}

// Run compiles the project and pending libraries, then links. A failing
// compile does not stop the remaining compiles or the link.
func (s *ResourceStage) Run(ctx context.Context) error {
	cfg := s.env.Config
	s.env.progress(s.name, "Compiling resources")
	s.invoke(ctx, s.env, s.compileCommand(cfg.Project.ResourceDir, cfg.ProjectResArchive()))

	s.env.progress(s.name, "Compiling libraries")
	for _, lib := range s.pending {
		if !dirExists(lib.ResourceDir) {
			s.env.log().Debug(s.name, "no resource directory for library "+lib.Name)
			continue
		}
		s.env.log().Debug(s.name, "Compiling library: "+lib.Name)
		out := cfg.LibraryResArchive(lib)
		if res := s.invoke(ctx, s.env, s.compileCommand(lib.ResourceDir, out)); res.HasDiagnostic() {
			// A partial archive would be taken as cached on the next build.
			_ = os.Remove(out)
		}
	}

	s.env.progress(s.name, "Linking resources")
	args, err := s.LinkArgs()
	if err != nil {
		return ioError(s.name, err)
	}
	s.invoke(ctx, s.env, procexec.Command{Program: cfg.Toolchain.AAPT2, Args: args})
	return s.launchError()
}

func (s *ResourceStage) compileCommand(dir, out string) procexec.Command {
	return procexec.Command{
		Program: s.env.Config.Toolchain.AAPT2,
		Args:    []string{"compile", "--dir", dir, "-o", out},
	}
}

// LinkArgs builds the aapt2 link argument list. Cached library archives
// come first in name order and the project archive last.
func (s *ResourceStage) LinkArgs() ([]string, error) {
	cfg := s.env.Config
	p := cfg.Project
	args := []string{
		"link",
		"--allow-reserved-package-id",
		"--no-version-vectors",
		"--no-version-transitions",
		"--auto-add-overlay",
		"--min-sdk-version", strconv.Itoa(p.MinSdk),
		"--target-sdk-version", strconv.Itoa(p.TargetSdk),
		"--version-code", strconv.Itoa(p.VersionCode),
		"--version-name", p.VersionName,
		"-I", cfg.Toolchain.PlatformJar,
	}
	if p.AssetsDir != "" {
		args = append(args, "-A", p.AssetsDir)
	}
	archives, err := compiledArchives(cfg.ResCacheDir())
	if err != nil {
		return nil, err
	}
	for _, a := range archives {
		args = append(args, "-R", a)
	}
	if project := cfg.ProjectResArchive(); fileExists(project) {
		args = append(args, "-R", project)
	}
	args = append(args, "--java", cfg.GenDir()+string(filepath.Separator), "--manifest", p.Manifest)
	if extra := extraPackages(p.Libraries); extra != "" {
		args = append(args, "--extra-packages", extra)
	}
	return append(args, "-o", cfg.LinkedResources()), nil
}

// compiledArchives lists library archives in dir, excluding the project's.
func compiledArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == config.ProjectResArchive || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func extraPackages(libs []config.Library) string {
	var pkgs []string
	for _, l := range libs {
		if l.RequiresResources && l.Package != "" {
			pkgs = append(pkgs, l.Package)
		}
	}
	return strings.Join(pkgs, ":")
}

// clearExcept removes every child of dir except keep. A missing dir is fine.
func clearExcept(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func dirExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func init() {
	Register(NameResources, func(env Env) Stage { return NewResourceStage(env) })
}
