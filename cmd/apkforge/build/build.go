package build

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/flarebyte/apk-forge/cmd/apkforge/exitcode"
	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/logsink"
	"github.com/flarebyte/apk-forge/internal/pipeline"
	"github.com/flarebyte/apk-forge/internal/procexec"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	action   string
	progress bool
	verbose  bool
)

// Cmd represents the `apkforge build` command.
var Cmd = &cobra.Command{
	Use:           "build",
	Short:         "Build the application archive described by a project config",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), nil, os.Stdout, os.Stderr)
	},
}

func init() {
	Cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to project config file (.cue)")
	Cmd.Flags().StringVar(&action, "action", "build", "Stages to run: build or compile")
	Cmd.Flags().BoolVar(&progress, "progress", false, "Print stage progress lines to stderr")
	Cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include debug log lines")
}

// run executes one build through a Builder. A nil runner uses real processes.
func run(ctx context.Context, runner procexec.Runner, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfgPath == "" {
		return exitcode.UsageError(errors.New("missing required flag: --config"))
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return exitcode.UsageError(err)
	}

	stderr = &lockedWriter{w: stderr}
	var sink logsink.Sink = logsink.NewConsole(stderr)
	if !verbose {
		sink = quiet{sink}
	}
	b := pipeline.NewBuilder(pipeline.Options{Action: action, Runner: runner, Log: sink})
	pr := newProgressPrinter(stderr, progress || cfg.UI.Progress)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range b.Events() {
			pr.handle(ev)
		}
	}()

	ch, err := b.Execute(ctx, cfg)
	if err != nil {
		b.Shutdown()
		b.Wait()
		<-drained
		return err
	}
	out := <-ch
	b.Shutdown()
	b.Wait()
	<-drained

	if err := writeSummary(stdout, cfg, out); err != nil {
		return err
	}
	if out.Failed {
		return exitcode.BuildFailed(failureLine(out))
	}
	return nil
}

// quiet drops debug entries.
type quiet struct{ logsink.Sink }

func (quiet) Debug(string, string) {}

// lockedWriter serializes log and progress lines written from two goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
