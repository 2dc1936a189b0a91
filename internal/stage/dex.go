package stage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/flarebyte/apk-forge/internal/procexec"
)

// DexStage translates the class output cache into dex files in bin/.
type DexStage struct {
	status
	env     Env
	classes []string
}

func NewDexStage(env Env) *DexStage {
	return &DexStage{status: status{name: NameDex}, env: env}
}

// Prepare removes stale dex outputs and collects class files.
func (s *DexStage) Prepare(ctx context.Context) error {
	s.reset()
	cfg := s.env.Config
	if err := os.MkdirAll(cfg.BinDir(), 0o755); err != nil {
		return ioError(s.name, err)
	}
	stale, err := dexFiles(cfg.BinDir())
	if err != nil {
		return ioError(s.name, err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return ioError(s.name, err)
		}
	}
	s.classes, err = classFiles(cfg.ClassesDir())
	if err != nil {
		return ioError(s.name, err)
	}
	return nil
}

func (s *DexStage) Run(ctx context.Context) error {
	cfg := s.env.Config
	if len(s.classes) == 0 {
		s.fail("no compiled classes under " + cfg.ClassesDir())
		s.env.log().Error(s.name, "no compiled classes under "+cfg.ClassesDir())
		return nil
	}
	s.env.progress(s.name, "Dexing "+strconv.Itoa(len(s.classes))+" class file(s)")
	s.invoke(ctx, s.env, procexec.Command{Program: cfg.Toolchain.D8, Args: s.Args()})
	return s.launchError()
}

// Args builds the d8 argument list: configured prefix arguments, release
// mode, min api, the platform library, output dir, classes then library jars.
func (s *DexStage) Args() []string {
	cfg := s.env.Config
	args := append([]string(nil), cfg.Toolchain.D8Args...)
	args = append(args,
		"--release",
		"--min-api", strconv.Itoa(cfg.Project.MinSdk),
		"--lib", cfg.Toolchain.PlatformJar,
		"--output", cfg.BinDir(),
	)
	args = append(args, s.classes...)
	for _, lib := range cfg.Project.Libraries {
		if fileExists(lib.ClassesJar) {
			args = append(args, lib.ClassesJar)
		}
	}
	return args
}

func classFiles(root string) ([]string, error) {
	if !dirExists(root) {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".class") {
			out = append(out, p)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// dexFiles lists classes*.dex files in dir: classes.dex first, then
// classes2.dex, classes3.dex and so on in numeric order.
func dexFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type dex struct {
		n    int
		path string
	}
	var found []dex
	for _, e := range entries {
		if n, ok := dexIndex(e.Name()); ok && !e.IsDir() {
			found = append(found, dex{n: n, path: filepath.Join(dir, e.Name())})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]string, 0, len(found))
	for _, d := range found {
		out = append(out, d.path)
	}
	return out, nil
}

// dexIndex returns 1 for classes.dex and N for classesN.dex.
func dexIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "classes") || !strings.HasSuffix(name, ".dex") {
		return 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, "classes"), ".dex")
	if mid == "" {
		return 1, true
	}
	n, err := strconv.Atoi(mid)
	if err != nil || n < 2 {
		return 0, false
	}
	return n, true
}

func init() {
	Register(NameDex, func(env Env) Stage { return NewDexStage(env) })
}
