package procexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	exitCodeLaunchFailed = -1
	exitCodeTimedOut     = -2
	termGrace            = 500 * time.Millisecond
	maxLineBytes         = 1 << 20
)

// Exec runs commands as OS processes in their own process group.
type Exec struct{}

// Run starts cmd, collects its error stream line by line and blocks until the
// process exits. The returned Output is populated on every path.
func (Exec) Run(ctx context.Context, c Command) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	var out strings.Builder
	var mu sync.Mutex
	appendLine := func(line string) {
		mu.Lock()
		out.WriteString(line)
		out.WriteString("\n")
		mu.Unlock()
		if c.OnLine != nil {
			c.OnLine(line)
		}
	}

	cmd := exec.Command(c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = applyEnvOverlay(os.Environ(), c.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw := io.Pipe()
	cmd.Stderr = pw
	if c.MergeStdout {
		cmd.Stdout = pw
	}

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		appendLine(launchFailure(c.Program, err))
		return Result{Output: out.String(), ExitCode: exitCodeLaunchFailed, Err: err}
	}

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		s := bufio.NewScanner(pr)
		s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for s.Scan() {
			appendLine(s.Text())
		}
		if err := s.Err(); err != nil {
			appendLine(fmt.Sprintf("%s: diagnostic stream unreadable: %v", c.Program, err))
		}
		// Drain so the writer never blocks after a scan error.
		_, _ = io.Copy(io.Discard, pr)
	}()

	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		done <- err
	}()

	var deadline <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var waitErr error
	timedOut, canceled := false, false
	select {
	case waitErr = <-done:
	case <-deadline:
		timedOut = true
		waitErr = terminate(cmd, done)
	case <-ctx.Done():
		canceled = true
		waitErr = terminate(cmd, done)
	}
	<-scanned

	res := Result{TimedOut: timedOut}
	switch {
	case timedOut:
		res.ExitCode = exitCodeTimedOut
		appendLine(fmt.Sprintf("%s: timed out after %s", c.Program, c.Timeout))
	case canceled:
		res.ExitCode = exitCodeLaunchFailed
		res.Err = ctx.Err()
		appendLine(fmt.Sprintf("%s: %v", c.Program, ctx.Err()))
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = exitCodeLaunchFailed
			res.Err = waitErr
			appendLine(fmt.Sprintf("%s: execution failed: %v", c.Program, waitErr))
		}
	}
	mu.Lock()
	res.Output = out.String()
	mu.Unlock()
	return res
}

func launchFailure(program string, err error) string {
	var ee *exec.Error
	if errors.As(err, &ee) {
		return fmt.Sprintf("Failed to start %s: program not found", program)
	}
	return fmt.Sprintf("Failed to start %s: %v", program, err)
}

// terminate sends SIGTERM to the process group, then SIGKILL after a grace
// period, and returns the wait error.
func terminate(cmd *exec.Cmd, done <-chan error) error {
	signalProcess(cmd, syscall.SIGTERM)
	grace := time.NewTimer(termGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-grace.C:
		signalProcess(cmd, syscall.SIGKILL)
		return <-done
	}
}

func signalProcess(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid > 0 {
		if err := syscall.Kill(-pid, sig); err == nil {
			return
		}
	}
	_ = cmd.Process.Signal(sig)
}

func applyEnvOverlay(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return append([]string(nil), base...)
	}
	m := map[string]string{}
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	for k, v := range overlay {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
