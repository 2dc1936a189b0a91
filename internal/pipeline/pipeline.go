// Package pipeline runs build stages in order and stops at the first stage
// that does not succeed. Builder runs pipelines on one background worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/flarebyte/apk-forge/internal/logsink"
	"github.com/flarebyte/apk-forge/internal/stage"
)

const logTag = "APK Builder"

// StageResult is the bookkeeping of one attempted stage.
type StageResult struct {
	Name       string
	Successful bool
	Elapsed    time.Duration
	Diagnostic string
	Err        *stage.Error
}

// Outcome is the result handed back to the caller of a build.
type Outcome struct {
	Message     string
	Failed      bool
	FailedStage string
	Diagnostic  string
	Elapsed     time.Duration
	Stages      []StageResult
	Err         *stage.Error
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	Stages   []stage.Stage
	Log      logsink.Sink
	Progress stage.ProgressFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *Pipeline) log() logsink.Sink {
	if p.Log == nil {
		return logsink.Discard
	}
	return p.Log
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Run attempts each stage only if every earlier stage succeeded. Panics are
// recovered into a failed Outcome carrying the stack trace.
func (p *Pipeline) Run(ctx context.Context) (out Outcome) {
	start := p.now()
	current := ""
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
			out.Failed = true
			out.FailedStage = current
			out.Diagnostic = msg
			out.Err = &stage.Error{Stage: current, Kind: stage.KindInternal, Message: fmt.Sprint(r)}
			p.log().Error(logTag, msg)
		}
		out.Elapsed = p.now().Sub(start)
		out.Message = summary(out.Failed, out.Elapsed)
		p.log().Debug(logTag, out.Message)
	}()

	for _, s := range p.Stages {
		current = s.Name()
		if err := ctx.Err(); err != nil {
			out.fail(StageResult{Name: current, Err: &stage.Error{Stage: current, Kind: stage.KindInternal, Message: err.Error()}})
			return out
		}
		res := p.runStage(ctx, s)
		out.Stages = append(out.Stages, res)
		if !res.Successful {
			out.fail(res)
			return out
		}
	}
	return out
}

func (p *Pipeline) runStage(ctx context.Context, s stage.Stage) StageResult {
	t0 := p.now()
	res := StageResult{Name: s.Name()}
	if p.Progress != nil {
		p.Progress(s.Name(), "started")
	}
	err := s.Prepare(ctx)
	if err == nil {
		err = s.Run(ctx)
	}
	res.Elapsed = p.now().Sub(t0)
	res.Diagnostic = s.Diagnostic()
	switch {
	case err != nil:
		res.Err = asStageError(s.Name(), err)
		if res.Diagnostic == "" {
			res.Diagnostic = res.Err.Message
		}
		p.log().Error(s.Name(), res.Err.Message)
	case !s.Successful():
		res.Err = &stage.Error{Stage: s.Name(), Kind: stage.KindExec, Message: firstLine(res.Diagnostic)}
	default:
		res.Successful = true
	}
	if p.Progress != nil {
		state := "done"
		if !res.Successful {
			state = "failed"
		}
		p.Progress(s.Name(), state)
	}
	return res
}

func (o *Outcome) fail(res StageResult) {
	o.Failed = true
	o.FailedStage = res.Name
	o.Diagnostic = res.Diagnostic
	o.Err = res.Err
	if o.Diagnostic == "" && res.Err != nil {
		o.Diagnostic = res.Err.Message
	}
}

func asStageError(name string, err error) *stage.Error {
	var se *stage.Error
	if errors.As(err, &se) {
		return se
	}
	return &stage.Error{Stage: name, Kind: stage.KindInternal, Message: err.Error()}
}

func summary(failed bool, d time.Duration) string {
	word := "success"
	if failed {
		word = "failed"
	}
	return "Build " + word + ", took " + strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
