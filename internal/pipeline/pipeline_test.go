package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/flarebyte/apk-forge/internal/logsink"
	"github.com/flarebyte/apk-forge/internal/stage"
)

type fakeStage struct {
	name       string
	trace      *[]string
	prepareErr error
	runErr     error
	fail       string
	panicMsg   string
	ran        bool
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Prepare(ctx context.Context) error {
	*f.trace = append(*f.trace, f.name+".prepare")
	return f.prepareErr
}

func (f *fakeStage) Run(ctx context.Context) error {
	*f.trace = append(*f.trace, f.name+".run")
	f.ran = true
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.runErr
}

func (f *fakeStage) Successful() bool   { return f.fail == "" }
func (f *fakeStage) Diagnostic() string { return f.fail }

func stages(trace *[]string, names ...string) []*fakeStage {
	out := make([]*fakeStage, 0, len(names))
	for _, n := range names {
		out = append(out, &fakeStage{name: n, trace: trace})
	}
	return out
}

func asStages(in []*fakeStage) []stage.Stage {
	out := make([]stage.Stage, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func TestPipeline_AllStagesSucceed(t *testing.T) {
	var trace []string
	ss := stages(&trace, "resources", "compile", "dex", "package")
	var progress []string
	p := &Pipeline{Stages: asStages(ss), Progress: func(s, m string) { progress = append(progress, s+":"+m) }}
	out := p.Run(context.Background())
	if out.Failed || len(out.Stages) != 4 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.HasPrefix(out.Message, "Build success, took ") {
		t.Fatalf("message=%q", out.Message)
	}
	want := []string{"resources.prepare", "resources.run", "compile.prepare", "compile.run", "dex.prepare", "dex.run", "package.prepare", "package.run"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("trace=%v", trace)
	}
	if progress[0] != "resources:started" || progress[len(progress)-1] != "package:done" {
		t.Fatalf("progress=%v", progress)
	}
}

func TestPipeline_FailFastOnResources(t *testing.T) {
	var trace []string
	ss := stages(&trace, "resources", "compile", "dex", "package")
	ss[0].fail = "error: resource string/app_name not found\n"
	out := (&Pipeline{Stages: asStages(ss)}).Run(context.Background())
	if !out.Failed || out.FailedStage != "resources" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	for _, s := range ss[1:] {
		if s.ran {
			t.Fatalf("stage %s attempted after failure", s.name)
		}
	}
	if !reflect.DeepEqual(trace, []string{"resources.prepare", "resources.run"}) {
		t.Fatalf("trace=%v", trace)
	}
	if out.Err == nil || out.Err.Kind != stage.KindExec || out.Err.Message != "error: resource string/app_name not found" {
		t.Fatalf("err=%+v", out.Err)
	}
	if !strings.HasPrefix(out.Message, "Build failed, took ") {
		t.Fatalf("message=%q", out.Message)
	}
}

func TestPipeline_PrepareErrorSkipsRun(t *testing.T) {
	var trace []string
	ss := stages(&trace, "compile", "dex")
	ss[0].prepareErr = &stage.Error{Stage: "compile", Kind: stage.KindIO, Message: "permission denied"}
	rec := &logsink.Recorder{}
	out := (&Pipeline{Stages: asStages(ss), Log: rec}).Run(context.Background())
	if !out.Failed || out.Err.Kind != stage.KindIO || out.Diagnostic != "permission denied" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !reflect.DeepEqual(trace, []string{"compile.prepare"}) {
		t.Fatalf("trace=%v", trace)
	}
	if rec.Count(logsink.LevelError) != 1 {
		t.Fatalf("expected one error entry, got %v", rec.Entries())
	}
}

func TestPipeline_PlainRunErrorIsInternal(t *testing.T) {
	var trace []string
	ss := stages(&trace, "dex")
	ss[0].runErr = errors.New("boom")
	out := (&Pipeline{Stages: asStages(ss)}).Run(context.Background())
	if out.Err == nil || out.Err.Kind != stage.KindInternal || out.Err.Stage != "dex" {
		t.Fatalf("err=%+v", out.Err)
	}
}

func TestPipeline_PanicBecomesFailedOutcome(t *testing.T) {
	var trace []string
	ss := stages(&trace, "resources", "package")
	ss[1].panicMsg = "nil archive"
	out := (&Pipeline{Stages: asStages(ss)}).Run(context.Background())
	if !out.Failed || out.FailedStage != "package" || out.Err.Kind != stage.KindInternal {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(out.Diagnostic, "panic: nil archive") || !strings.Contains(out.Diagnostic, "goroutine") {
		t.Fatalf("diagnostic should carry the stack trace: %q", out.Diagnostic)
	}
}

func TestPipeline_CanceledContextStopsBeforeNextStage(t *testing.T) {
	var trace []string
	ss := stages(&trace, "resources", "compile")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := (&Pipeline{Stages: asStages(ss)}).Run(ctx)
	if !out.Failed || len(trace) != 0 || out.FailedStage != "resources" {
		t.Fatalf("unexpected outcome: %+v trace=%v", out, trace)
	}
}

func TestPipeline_ElapsedUsesClock(t *testing.T) {
	var trace []string
	t0 := time.Unix(100, 0)
	calls := 0
	p := &Pipeline{Stages: asStages(stages(&trace, "a")), Now: func() time.Time {
		calls++
		return t0.Add(time.Duration(calls) * 10 * time.Millisecond)
	}}
	out := p.Run(context.Background())
	if out.Elapsed != 30*time.Millisecond || out.Message != "Build success, took 30ms" {
		t.Fatalf("elapsed=%v message=%q", out.Elapsed, out.Message)
	}
}
