// Package procexec launches external tools and captures their diagnostic
// stream. A single Run is exactly one process execution; there are no retries.
package procexec

import (
	"context"
	"time"
)

// Command describes one external tool invocation.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
	// MergeStdout interleaves standard output into the captured stream.
	MergeStdout bool
	// Timeout bounds the invocation; zero means no limit.
	Timeout time.Duration
	// OnLine, when set, is called for every captured line.
	OnLine func(line string)
}

// Result is the outcome of a Command.
type Result struct {
	// Output is the accumulated stderr (plus stdout when merged), one
	// "\n"-terminated entry per line. Launch failures are appended here too.
	Output   string
	ExitCode int
	TimedOut bool
	// Err is set when the process could not be started or waited on.
	Err error
}

// HasDiagnostic reports whether the tool wrote anything to the captured
// stream. Stages treat this as failure even when ExitCode is zero.
func (r Result) HasDiagnostic() bool {
	return r.Output != ""
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) Result

func (f RunnerFunc) Run(ctx context.Context, cmd Command) Result { return f(ctx, cmd) }
