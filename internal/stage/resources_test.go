package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/procexec"
	"github.com/flarebyte/apk-forge/internal/testutil"
)

func libraryAt(name, jar string) config.Library {
	dir := filepath.Dir(jar)
	return config.Library{Name: name, Path: dir, ResourceDir: filepath.Join(dir, "res"), ClassesJar: jar}
}

func TestResourceLibraryCache(t *testing.T) {
	cfg := testProject(t)
	base := filepath.Dir(cfg.Project.OutputDir)
	cached := libraryAt("cached", filepath.Join(base, "libs", "cached", "classes.jar"))
	fresh := libraryAt("fresh", filepath.Join(base, "libs", "fresh", "classes.jar"))
	testutil.WriteFile(t, cached.ResourceDir, "values/v.xml", "<resources/>")
	testutil.WriteFile(t, fresh.ResourceDir, "values/v.xml", "<resources/>")
	cfg.Project.Libraries = []config.Library{cached, fresh}
	writeZipFile(cfg.LibraryResArchive(cached), map[string]string{"old.flat": "x"})

	tools := newFakeTools()
	env, _ := testEnv(cfg, tools)
	s := NewResourceStage(env)
	runStage(t, s)
	if !s.Successful() {
		t.Fatalf("unexpected failure: %s", s.Diagnostic())
	}
	if got := s.Pending(); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Fatalf("pending=%v", got)
	}
	calls := tools.callsOf("aapt2")
	if len(calls) != 3 {
		t.Fatalf("aapt2 calls=%d", len(calls))
	}
	for _, c := range calls[:2] {
		if c.Args[0] != "compile" || argAfter(c.Args, "--dir") == cached.ResourceDir {
			t.Fatalf("cached library recompiled: %q", c.Args)
		}
	}
	var inputs []string
	link := calls[2].Args
	for i, a := range link {
		if a == "-R" {
			inputs = append(inputs, link[i+1])
		}
	}
	want := []string{cfg.LibraryResArchive(cached), cfg.LibraryResArchive(fresh), cfg.ProjectResArchive()}
	if !reflect.DeepEqual(inputs, want) {
		t.Fatalf("link inputs=%v want %v", inputs, want)
	}

	again := NewResourceStage(env)
	runStage(t, again)
	if len(again.Pending()) != 0 {
		t.Fatalf("second build should compile no library, pending=%v", again.Pending())
	}
}

func TestResourcePrepareKeepsCacheOnly(t *testing.T) {
	cfg := testProject(t)
	testutil.WriteFile(t, cfg.BinDir(), "gen.apk", "old")
	testutil.WriteFile(t, cfg.BinDir(), "classes.dex", "old")
	testutil.WriteFile(t, cfg.ResCacheDir(), "lib.zip", "keep")
	env, _ := testEnv(cfg, newFakeTools())
	if err := NewResourceStage(env).Prepare(t.Context()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(cfg.BinDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "res" {
		t.Fatalf("bin entries=%v", entries)
	}
	if !testutil.Exists(filepath.Join(cfg.ResCacheDir(), "lib.zip")) {
		t.Fatalf("resource cache cleared")
	}
}

func TestResourceDiagnosticMeansFailure(t *testing.T) {
	cfg := testProject(t)
	lib := libraryAt("widgets", filepath.Join(filepath.Dir(cfg.Project.OutputDir), "libs", "widgets", "classes.jar"))
	testutil.WriteFile(t, lib.ResourceDir, "values/v.xml", "<resources/>")
	cfg.Project.Libraries = []config.Library{lib}
	tools := newFakeTools()
	tools.fail["aapt2"] = "warn: deprecated attribute\n"
	env, rec := testEnv(cfg, tools)
	s := NewResourceStage(env)
	runStage(t, s)
	if s.Successful() {
		t.Fatalf("diagnostic output with exit 0 must fail the stage")
	}
	if n := len(tools.callsOf("aapt2")); n != 3 {
		t.Fatalf("every invocation should still be attempted, got %d", n)
	}
	if testutil.Exists(cfg.LibraryResArchive(lib)) {
		t.Fatalf("failed library archive must not look cached")
	}
	if rec.Count("error") != 3 {
		t.Fatalf("error entries=%d", rec.Count("error"))
	}
}

func TestLinkArgs(t *testing.T) {
	cfg := testProject(t)
	cfg.Project.AssetsDir = "/p/assets"
	cfg.Project.MinSdk = 24
	cfg.Project.VersionCode = 7
	cfg.Project.VersionName = "2.0"
	cfg.Project.Libraries = []config.Library{
		{Name: "a", Package: "com.lib.a", RequiresResources: true},
		{Name: "b", Package: "com.lib.b"},
		{Name: "c", Package: "com.lib.c", RequiresResources: true},
	}
	writeZipFile(cfg.ProjectResArchive(), map[string]string{"x": "y"})
	writeZipFile(cfg.LibraryResArchive(cfg.Project.Libraries[0]), map[string]string{"x": "y"})
	env, _ := testEnv(cfg, newFakeTools())
	args, err := NewResourceStage(env).LinkArgs()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"link", "--allow-reserved-package-id", "--no-version-vectors", "--no-version-transitions", "--auto-add-overlay",
		"--min-sdk-version", "24", "--target-sdk-version", "28", "--version-code", "7", "--version-name", "2.0",
		"-I", cfg.Toolchain.PlatformJar, "-A", "/p/assets",
		"-R", cfg.LibraryResArchive(cfg.Project.Libraries[0]), "-R", cfg.ProjectResArchive(),
		"--java", cfg.GenDir() + string(filepath.Separator), "--manifest", cfg.Project.Manifest,
		"--extra-packages", "com.lib.a:com.lib.c",
		"-o", cfg.LinkedResources(),
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("link args\n got: %q\nwant: %q", args, want)
	}
}

func TestResourceMissingToolIsIOFailure(t *testing.T) {
	cfg := testProject(t)
	missing := procexec.RunnerFunc(func(ctx context.Context, cmd procexec.Command) procexec.Result {
		return procexec.Result{
			Output:   "Failed to start " + cmd.Program + ": program not found\n",
			ExitCode: -1,
			Err:      errors.New("exec: \"" + cmd.Program + "\": executable file not found in $PATH"),
		}
	})
	env, _ := testEnv(cfg, missing)
	s := NewResourceStage(env)
	if err := s.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	err := s.Run(context.Background())
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindIO || se.Stage != NameResources {
		t.Fatalf("expected io stage error, got %v", err)
	}
	if s.Successful() || !strings.Contains(s.Diagnostic(), "program not found") {
		t.Fatalf("diagnostic=%q", s.Diagnostic())
	}
}
