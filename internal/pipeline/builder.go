package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/logsink"
	"github.com/flarebyte/apk-forge/internal/procexec"
	"github.com/flarebyte/apk-forge/internal/report"
	"github.com/flarebyte/apk-forge/internal/snapshot"
	"github.com/flarebyte/apk-forge/internal/stage"
)

var (
	// ErrBusy is returned by Execute while a build is in flight.
	ErrBusy = errors.New("builder: a build is already running")
	// ErrShutdown is returned by Execute after Shutdown.
	ErrShutdown = errors.New("builder: shut down")
)

const (
	defaultEventBuffer = 256
	doneEventWait      = 2 * time.Second
)

// Options configures a Builder.
type Options struct {
	Action   string
	Runner   procexec.Runner
	Log      logsink.Sink
	Uploader stage.Uploader
	// EventBuffer sizes the Events channel.
	EventBuffer int
	// ResolverSize bounds the package declaration cache shared by builds.
	ResolverSize int
	// NoReport disables build-report.yaml.
	NoReport bool
}

type job struct {
	ctx    context.Context
	cfg    config.Build
	result chan Outcome
}

// Builder runs one build at a time on a dedicated goroutine.
type Builder struct {
	opts     Options
	resolver *snapshot.Resolver
	events   emitter
	jobs     chan job
	done     chan struct{}

	mu     sync.Mutex
	busy   bool
	closed bool
}

// NewBuilder starts the worker.
func NewBuilder(opts Options) *Builder {
	n := opts.EventBuffer
	if n <= 0 {
		n = defaultEventBuffer
	}
	b := &Builder{
		opts:     opts,
		resolver: snapshot.NewResolver(opts.ResolverSize),
		events:   make(emitter, n),
		jobs:     make(chan job, 1),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Events delivers progress, log and completion notifications. Progress and
// log events are dropped when the buffer is full. EventDone waits briefly for
// a reader before it is dropped too. The channel is closed when the worker
// exits.
func (b *Builder) Events() <-chan Event { return b.events }

// Execute queues a build of cfg. The returned channel receives exactly one
// Outcome.
func (b *Builder) Execute(ctx context.Context, cfg config.Build) (<-chan Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrShutdown
	}
	if b.busy {
		return nil, ErrBusy
	}
	b.busy = true
	j := job{ctx: ctx, cfg: cfg, result: make(chan Outcome, 1)}
	b.jobs <- j
	return j.result, nil
}

// Shutdown stops accepting builds. A build in flight runs to completion.
func (b *Builder) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.jobs)
	}
}

// Wait blocks until the worker has exited after Shutdown.
func (b *Builder) Wait() { <-b.done }

func (b *Builder) loop() {
	defer close(b.done)
	defer close(b.events)
	for j := range b.jobs {
		out := b.build(j)
		b.events.emitWait(Event{Kind: EventDone, Message: out.Message, Outcome: &out}, doneEventWait)
		b.mu.Lock()
		b.busy = false
		b.mu.Unlock()
		j.result <- out
		close(j.result)
	}
}

func (b *Builder) build(j job) (out Outcome) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log := logsink.Multi(b.opts.Log, b.events.sink())
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Message:    summary(true, 0),
				Failed:     true,
				Diagnostic: fmt.Sprintf("panic: %v\n%s", r, debug.Stack()),
				Err:        &stage.Error{Kind: stage.KindInternal, Message: fmt.Sprint(r)},
			}
			log.Error(logTag, out.Diagnostic)
		}
	}()

	env := stage.Env{
		Config:   j.cfg,
		Runner:   b.opts.Runner,
		Log:      log,
		Progress: b.events.progress,
		Resolver: b.resolver,
		Uploader: b.opts.Uploader,
	}
	action := b.opts.Action
	if action == "" {
		action = stage.ActionBuild
	}
	stages, err := stage.Build(action, env)
	if err != nil {
		return Outcome{
			Message:    summary(true, 0),
			Failed:     true,
			Diagnostic: err.Error(),
			Err:        &stage.Error{Kind: stage.KindInternal, Message: err.Error()},
		}
	}
	p := &Pipeline{Stages: stages, Log: log, Progress: b.events.progress}
	out = p.Run(ctx)
	if !b.opts.NoReport {
		if err := report.Write(j.cfg.ReportPath(), toReport(j.cfg, action, out, stages)); err != nil {
			log.Warn(logTag, "build report: "+err.Error())
		}
	}
	return out
}

func toReport(cfg config.Build, action string, out Outcome, stages []stage.Stage) report.Build {
	r := report.Build{
		Project:     cfg.Project.Name,
		Action:      action,
		Failed:      out.Failed,
		Message:     out.Message,
		FailedStage: out.FailedStage,
		ElapsedMs:   out.Elapsed.Milliseconds(),
	}
	for _, s := range out.Stages {
		rs := report.Stage{Name: s.Name, Successful: s.Successful, ElapsedMs: s.Elapsed.Milliseconds(), Diagnostic: s.Diagnostic}
		if s.Err != nil {
			rs.ErrorKind = string(s.Err.Kind)
		}
		r.Stages = append(r.Stages, rs)
	}
	for _, s := range stages {
		if c, ok := s.(*stage.CompileStage); ok && c.State() != stage.StateIdle {
			d := c.Delta()
			r.Compile = &report.Compile{
				State:     string(c.State()),
				ToCompile: snapshot.Identities(d.ToCompile),
				ToRemove:  snapshot.Identities(d.ToRemove),
			}
		}
	}
	if !out.Failed && action == stage.ActionBuild {
		r.Archive = cfg.ArchivePath()
	}
	return r
}
