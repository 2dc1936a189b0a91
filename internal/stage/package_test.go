package stage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/testutil"
)

func TestDexArgsAndStaleOutputs(t *testing.T) {
	cfg := testProject(t)
	cfg.Toolchain.D8Args = []string{"-cp", "r8.jar", "com.android.tools.r8.D8"}
	testutil.WriteFile(t, cfg.ClassesDir(), "com/x/B.class", "b")
	testutil.WriteFile(t, cfg.ClassesDir(), "com/x/A.class", "a")
	testutil.WriteFile(t, cfg.BinDir(), "classes3.dex", "stale")
	tools := newFakeTools()
	env, _ := testEnv(cfg, tools)
	s := NewDexStage(env)
	runStage(t, s)
	if !s.Successful() {
		t.Fatalf("dex failed: %s", s.Diagnostic())
	}
	if testutil.Exists(filepath.Join(cfg.BinDir(), "classes3.dex")) {
		t.Fatalf("stale dex survived")
	}
	want := []string{
		"-cp", "r8.jar", "com.android.tools.r8.D8",
		"--release", "--min-api", "21", "--lib", cfg.Toolchain.PlatformJar, "--output", cfg.BinDir(),
		filepath.Join(cfg.ClassesDir(), "com", "x", "A.class"),
		filepath.Join(cfg.ClassesDir(), "com", "x", "B.class"),
	}
	if got := tools.callsOf("d8")[0].Args; !reflect.DeepEqual(got, want) {
		t.Fatalf("d8 args\n got: %q\nwant: %q", got, want)
	}
}

func TestDexWithoutClassesFails(t *testing.T) {
	cfg := testProject(t)
	tools := newFakeTools()
	env, _ := testEnv(cfg, tools)
	s := NewDexStage(env)
	runStage(t, s)
	if s.Successful() || len(tools.callsOf("d8")) != 0 {
		t.Fatalf("expected failure without invoking d8")
	}
}

func TestDexIndex(t *testing.T) {
	cases := map[string]int{"classes.dex": 1, "classes2.dex": 2, "classes10.dex": 10}
	for name, want := range cases {
		if n, ok := dexIndex(name); !ok || n != want {
			t.Errorf("dexIndex(%s)=%d,%v", name, n, ok)
		}
	}
	for _, name := range []string{"classes1.dex", "other.dex", "classes.jar", "classesX.dex"} {
		if _, ok := dexIndex(name); ok {
			t.Errorf("dexIndex(%s) should not match", name)
		}
	}
}

func TestPackageStage(t *testing.T) {
	cfg := testProject(t)
	writeZipFile(cfg.LinkedResources(), map[string]string{"AndroidManifest.xml": "m", "resources.arsc": "r"})
	testutil.WriteFile(t, cfg.BinDir(), "classes.dex", "d1")
	testutil.WriteFile(t, cfg.BinDir(), "classes10.dex", "d10")
	testutil.WriteFile(t, cfg.BinDir(), "classes2.dex", "d2")
	jar := filepath.Join(filepath.Dir(cfg.Project.OutputDir), "libs", "l", "classes.jar")
	writeZipFile(jar, map[string]string{"l/A.class": "c", "META-INF/MANIFEST.MF": "m", "okhttp3/internal/publicsuffix.gz": "ps"})
	cfg.Project.Libraries = []config.Library{libraryAt("l", jar), libraryAt("gone", filepath.Join(filepath.Dir(jar), "none.jar"))}

	env, _ := testEnv(cfg, newFakeTools())
	s := NewPackageStage(env)
	runStage(t, s)
	if !s.Successful() {
		t.Fatalf("package failed: %s", s.Diagnostic())
	}
	got := s.Entries()
	want := []string{"AndroidManifest.xml", "resources.arsc", "classes.dex", "classes2.dex", "classes10.dex", "okhttp3/internal/publicsuffix.gz"}
	if len(got) != len(want) {
		t.Fatalf("entries=%v", got)
	}
	// Entries of the linked package keep their archive order, which writeZipFile does not fix.
	if !reflect.DeepEqual(got[2:], want[2:]) {
		t.Fatalf("entries=%v", got)
	}
	if !testutil.Exists(cfg.ArchivePath()) || testutil.Exists(cfg.ArchivePath()+".tmp") {
		t.Fatalf("archive not sealed in place")
	}
}

func TestPackageRequiresInputs(t *testing.T) {
	cfg := testProject(t)
	env, _ := testEnv(cfg, newFakeTools())
	err := NewPackageStage(env).Prepare(context.Background())
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindIO || se.Stage != NamePackage {
		t.Fatalf("err=%v", err)
	}
}

type fakeUploader struct {
	key, path string
	err       error
}

func (f *fakeUploader) Upload(ctx context.Context, key, path string) error {
	f.key, f.path = key, path
	return f.err
}

func TestPublishStage(t *testing.T) {
	cfg := testProject(t)
	cfg.Publish = config.Publish{Enabled: true, Endpoint: "localhost:9000", Bucket: "apks", Prefix: "/nightly/"}
	testutil.WriteFile(t, cfg.BinDir(), "gen.apk", "apk")
	up := &fakeUploader{}
	env, _ := testEnv(cfg, newFakeTools())
	env.Uploader = up
	s := NewPublishStage(env)
	runStage(t, s)
	if !s.Successful() || up.key != "nightly/demo-1.0-1.apk" || up.path != cfg.ArchivePath() {
		t.Fatalf("upload key=%s path=%s ok=%v", up.key, up.path, s.Successful())
	}

	up.err = errors.New("connection refused")
	failing := NewPublishStage(env)
	runStage(t, failing)
	if failing.Successful() || !strings.Contains(failing.Diagnostic(), "connection refused") {
		t.Fatalf("diag=%q", failing.Diagnostic())
	}
}

func TestNewS3UploaderValidates(t *testing.T) {
	if _, err := NewS3Uploader(config.Publish{Bucket: "b", AccessKey: "a", SecretKey: "s"}); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewS3Uploader(config.Publish{Endpoint: "localhost:9000", Bucket: "b"}); err == nil {
		t.Fatalf("expected credentials error")
	}
	if _, err := NewS3Uploader(config.Publish{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestActionsAndRegistry(t *testing.T) {
	var cfg config.Build
	names, err := Actions("build", cfg)
	if err != nil || !reflect.DeepEqual(names, []string{"resources", "compile", "dex", "package"}) {
		t.Fatalf("build=%v err=%v", names, err)
	}
	cfg.Publish.Enabled = true
	if names, _ := Actions("", cfg); names[len(names)-1] != "publish" {
		t.Fatalf("publish not appended: %v", names)
	}
	if names, _ := Actions("compile", cfg); !reflect.DeepEqual(names, []string{"resources", "compile"}) {
		t.Fatalf("compile=%v", names)
	}
	if _, err := Actions("deploy", cfg); err == nil {
		t.Fatalf("expected unknown action error")
	}
	if !reflect.DeepEqual(Names(), []string{"compile", "dex", "package", "publish", "resources"}) {
		t.Fatalf("registry=%v", Names())
	}
	if _, err := New("lint", Env{}); err == nil || err.Error() != "unknown stage: lint" {
		t.Fatalf("err=%v", err)
	}
	stages, err := Build("compile", Env{Config: cfg})
	if err != nil || len(stages) != 2 || stages[1].Name() != "compile" {
		t.Fatalf("stages=%v err=%v", stages, err)
	}
}
