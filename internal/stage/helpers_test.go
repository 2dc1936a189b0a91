package stage

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/logsink"
	"github.com/flarebyte/apk-forge/internal/procexec"
	"github.com/flarebyte/apk-forge/internal/snapshot"
	"github.com/flarebyte/apk-forge/internal/testutil"
)

var past = time.Now().Add(-time.Hour).Truncate(time.Second)

// fakeTools records every command and dispatches on the program name.
type fakeTools struct {
	mu    sync.Mutex
	calls []procexec.Command
	// fail maps a program to the diagnostic it prints.
	fail map[string]string
	// exit maps a program to its exit code.
	exit map[string]int
}

func newFakeTools() *fakeTools {
	return &fakeTools{fail: map[string]string{}, exit: map[string]int{}}
}

func (f *fakeTools) Run(ctx context.Context, cmd procexec.Command) procexec.Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	res := procexec.Result{Output: f.fail[cmd.Program], ExitCode: f.exit[cmd.Program]}
	if res.ExitCode != 0 {
		return res
	}
	switch cmd.Program {
	case "aapt2":
		out := argAfter(cmd.Args, "-o")
		if cmd.Args[0] == "link" {
			writeZipFile(out, map[string]string{"AndroidManifest.xml": "m", "resources.arsc": "r"})
			pkgDir := filepath.Join(strings.TrimSuffix(argAfter(cmd.Args, "--java"), string(filepath.Separator)), "com", "example", "app")
			_ = os.MkdirAll(pkgDir, 0o755)
			_ = os.WriteFile(filepath.Join(pkgDir, "R.java"), []byte("package com.example.app;\npublic final class R {}\n"), 0o644)
		} else if res.Output == "" {
			writeZipFile(out, map[string]string{"values.arsc.flat": "x"})
		}
	case "javac":
		dir := argAfter(cmd.Args, "-d")
		for _, src := range cmd.Args[indexOf(cmd.Args, "-sourcepath")+2:] {
			pkg, _ := snapshot.ReadPackage(src)
			stem := strings.TrimSuffix(filepath.Base(src), ".java")
			out := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(pkg, ".", "/")), stem+".class")
			_ = os.MkdirAll(filepath.Dir(out), 0o755)
			_ = os.WriteFile(out, []byte("class"), 0o644)
		}
	case "d8":
		_ = os.WriteFile(filepath.Join(argAfter(cmd.Args, "--output"), "classes.dex"), []byte("dex"), 0o644)
	}
	return res
}

func (f *fakeTools) callsOf(program string) []procexec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []procexec.Command
	for _, c := range f.calls {
		if c.Program == program {
			out = append(out, c)
		}
	}
	return out
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

func argAfter(args []string, flag string) string {
	i := indexOf(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func writeZipFile(p string, entries map[string]string) {
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	f, err := os.Create(p)
	if err != nil {
		return
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, _ := zw.Create(name)
		_, _ = w.Write([]byte(body))
	}
	_ = zw.Close()
	_ = f.Close()
}

func testProject(t *testing.T) config.Build {
	t.Helper()
	d := t.TempDir()
	testutil.WriteFile(t, d, "app/res/values/strings.xml", "<resources/>")
	testutil.WriteFile(t, d, "app/AndroidManifest.xml", "<manifest/>")
	return config.Build{
		Project: config.Project{
			Name:        "demo",
			SourceDir:   filepath.Join(d, "app", "src"),
			ResourceDir: filepath.Join(d, "app", "res"),
			Manifest:    filepath.Join(d, "app", "AndroidManifest.xml"),
			OutputDir:   filepath.Join(d, "out"),
			MinSdk:      21,
			TargetSdk:   28,
			VersionCode: 1,
			VersionName: "1.0",
		},
		Toolchain: config.Toolchain{AAPT2: "aapt2", Javac: "javac", D8: "d8", PlatformJar: filepath.Join(d, "android.jar")},
		Sources:   config.Sources{Suffix: ".java", Modification: config.ModeTimestamp},
	}
}

func testEnv(cfg config.Build, tools procexec.Runner) (Env, *logsink.Recorder) {
	rec := &logsink.Recorder{}
	return Env{Config: cfg, Runner: tools, Log: rec}, rec
}

func javaFile(pkg, class, body string) string {
	return "package " + pkg + ";\n\npublic class " + class + " {" + body + "}\n"
}

func runStage(t *testing.T, s Stage) {
	t.Helper()
	if err := s.Prepare(context.Background()); err != nil {
		t.Fatalf("%s prepare: %v", s.Name(), err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("%s run: %v", s.Name(), err)
	}
}
