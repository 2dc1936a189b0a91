package stage

import (
	"context"
	"strings"
	"time"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/logsink"
	"github.com/flarebyte/apk-forge/internal/procexec"
	"github.com/flarebyte/apk-forge/internal/snapshot"
)

// Stage is one pipeline step wrapping one category of external tool.
// Prepare runs before Run; Successful and Diagnostic are read after Run.
type Stage interface {
	Name() string
	Prepare(ctx context.Context) error
	Run(ctx context.Context) error
	Successful() bool
	Diagnostic() string
}

// ProgressFunc receives short human-readable progress updates.
type ProgressFunc func(stage, message string)

// Env is everything a stage needs from the outside world.
type Env struct {
	Config   config.Build
	Runner   procexec.Runner
	Log      logsink.Sink
	Progress ProgressFunc
	// Resolver caches package declarations across builds.
	Resolver *snapshot.Resolver
	// Uploader overrides the object store used by the publish stage.
	Uploader Uploader
}

func (e Env) log() logsink.Sink {
	if e.Log == nil {
		return logsink.Discard
	}
	return e.Log
}

func (e Env) runner() procexec.Runner {
	if e.Runner == nil {
		return procexec.Exec{}
	}
	return e.Runner
}

func (e Env) progress(stage, msg string) {
	if e.Progress != nil {
		e.Progress(stage, msg)
	}
}

func (e Env) timeout() time.Duration {
	return time.Duration(e.Config.Toolchain.TimeoutMs) * time.Millisecond
}

// status is the success and diagnostic bookkeeping shared by all stages.
type status struct {
	name   string
	failed bool
	diag   strings.Builder
	// launch is the first tool that could not be started.
	launch error
}

func (s *status) Name() string       { return s.name }
func (s *status) Successful() bool   { return !s.failed }
func (s *status) Diagnostic() string { return s.diag.String() }

// reset clears a previous run.
func (s *status) reset() {
	s.failed = false
	s.diag.Reset()
	s.launch = nil
}

// launchError reports a tool that never ran as an I/O failure.
func (s *status) launchError() error {
	if s.launch == nil {
		return nil
	}
	return ioError(s.name, s.launch)
}

// fail marks the stage unsuccessful and appends msg to the diagnostic.
func (s *status) fail(msg string) {
	s.failed = true
	if msg == "" {
		return
	}
	s.diag.WriteString(msg)
	if !strings.HasSuffix(msg, "\n") {
		s.diag.WriteByte('\n')
	}
}

// invoke runs cmd and applies the diagnostic policy: captured output is a
// failure whatever the exit code, and silence is success.
func (s *status) invoke(ctx context.Context, env Env, cmd procexec.Command) procexec.Result {
	if cmd.Timeout == 0 {
		cmd.Timeout = env.timeout()
	}
	env.log().Debug(s.name, "exec "+cmd.Program+" "+strings.Join(cmd.Args, " "))
	res := env.runner().Run(ctx, cmd)
	if res.Err != nil && ctx.Err() == nil && s.launch == nil {
		s.launch = res.Err
	}
	if res.HasDiagnostic() {
		env.log().Error(s.name, strings.TrimRight(res.Output, "\n"))
		s.fail(res.Output)
	} else if res.ExitCode != 0 {
		env.log().Warn(s.name, cmd.Program+" exited with status "+itoa(res.ExitCode)+" without diagnostics")
	}
	return res
}
