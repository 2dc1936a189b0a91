package stage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/luafilter"
	"github.com/flarebyte/apk-forge/internal/procexec"
	"github.com/flarebyte/apk-forge/internal/snapshot"
)

// CompileState is the position of the incremental compiler in one run.
type CompileState string

const (
	StateIdle      CompileState = "idle"
	StatePrepared  CompileState = "prepared"
	StateCompiling CompileState = "compiling"
	StateMerged    CompileState = "merged"
	StateSkipped   CompileState = "skipped"
	StateFailed    CompileState = "failed"
)

const javaRelease = "17"

// CompileStage recompiles only the sources that changed since the last
// successful compile and keeps the source snapshot in step with the class
// output cache.
type CompileStage struct {
	status
	env    Env
	state  CompileState
	delta  snapshot.Delta
	merged int
}

func NewCompileStage(env Env) *CompileStage {
	return &CompileStage{status: status{name: NameCompile}, env: env, state: StateIdle}
}

// State returns the current state.
func (s *CompileStage) State() CompileState { return s.state }

// Delta returns the delta computed by Prepare.
func (s *CompileStage) Delta() snapshot.Delta { return s.delta }

// Merged returns how many sources were copied into the snapshot.
func (s *CompileStage) Merged() int { return s.merged }

// Plan computes the compile delta for cfg without touching the output tree.
func Plan(cfg config.Build, resolver *snapshot.Resolver) (snapshot.Delta, error) {
	mode, err := snapshot.ParseModification(cfg.Sources.Modification)
	if err != nil {
		return snapshot.Delta{}, err
	}
	store := snapshot.Store{Root: cfg.SnapshotDir()}
	old, err := store.Load(cfg.Sources.Suffix, resolver)
	if err != nil {
		return snapshot.Delta{}, err
	}
	var filter *luafilter.Predicate
	if strings.TrimSpace(cfg.Sources.Filter) != "" {
		filter, err = luafilter.Compile("sources.filter", cfg.Sources.Filter, 0)
		if err != nil {
			return snapshot.Delta{}, err
		}
		defer filter.Close()
	}
	opts := snapshot.Options{
		Suffix:    cfg.Sources.Suffix,
		Gitignore: !cfg.Sources.NoGitignore,
		Filter:    filter,
		Resolver:  resolver,
	}
	src, err := snapshot.Index(cfg.Project.SourceDir, opts)
	if err != nil {
		return snapshot.Delta{}, err
	}
	opts.Gitignore = false
	gen, err := snapshot.Index(cfg.GenDir(), opts)
	if err != nil {
		return snapshot.Delta{}, err
	}
	return snapshot.Diff(old, snapshot.Unique(src, gen), mode), nil
}

// Prepare computes the delta between the snapshot and the current sources.
func (s *CompileStage) Prepare(ctx context.Context) error {
	s.reset()
	s.merged = 0
	s.env.progress(s.name, "Scanning sources")
	d, err := Plan(s.env.Config, s.env.Resolver)
	if err != nil {
		s.state = StateFailed
		return ioError(s.name, err)
	}
	s.delta = d
	s.state = StatePrepared
	return nil
}

// Run removes stale outputs, compiles the delta and merges it into the
// snapshot. An empty delta skips the compiler entirely.
func (s *CompileStage) Run(ctx context.Context) error {
	cfg := s.env.Config
	log := s.env.log()
	store := snapshot.Store{Root: cfg.SnapshotDir()}

	if cfg.Sources.Explain {
		for _, ch := range s.delta.Modified {
			if text := explainChange(ch); text != "" {
				log.Debug(s.name, text)
			}
		}
	}
	for _, ch := range s.delta.Modified {
		if err := store.Remove(ch.Old); err != nil {
			log.Warn(s.name, "Failed to delete file "+ch.Old.Path)
		}
		s.deleteOutputs(ch.Old)
		log.Debug(s.name, ch.Old.BaseName()+": Removed old class file that has been modified")
	}
	for _, old := range s.delta.ToRemove {
		log.Debug(s.name, "Class no longer exists, deleting file: "+old.Identity)
		if err := store.Remove(old); err != nil {
			log.Warn(s.name, "Failed to delete file "+old.Path)
			continue
		}
		s.deleteOutputs(old)
	}

	if len(s.delta.ToCompile) == 0 {
		s.state = StateSkipped
		log.Debug(s.name, "Files are up to date, skipping compilation.")
		s.env.progress(s.name, "Sources up to date")
		return nil
	}

	s.state = StateCompiling
	log.Debug(s.name, "Found "+strconv.Itoa(len(s.delta.ToCompile))+" file(s) that are modified.")
	s.env.progress(s.name, "Compiling "+strconv.Itoa(len(s.delta.ToCompile))+" source file(s)")
	if err := os.MkdirAll(cfg.ClassesDir(), 0o755); err != nil {
		s.state = StateFailed
		return ioError(s.name, err)
	}
	cmd := procexec.Command{
		Program:     cfg.Toolchain.Javac,
		Args:        s.javacArgs(),
		MergeStdout: true,
		Timeout:     s.env.timeout(),
		OnLine:      func(line string) { log.Debug(s.name, line) },
	}
	log.Debug(s.name, "exec "+cmd.Program+" "+strings.Join(cmd.Args, " "))
	res := s.env.runner().Run(ctx, cmd)
	if res.ExitCode != 0 || res.Err != nil {
		s.state = StateFailed
		msg := res.Output
		if msg == "" {
			msg = failureText(cmd.Program, res)
		}
		log.Error(s.name, strings.TrimRight(msg, "\n"))
		s.fail(msg)
		if res.Err != nil && ctx.Err() == nil {
			return ioError(s.name, res.Err)
		}
		return nil
	}

	log.Debug(s.name, "Merging modified java files")
	for _, rec := range s.delta.ToCompile {
		ok, err := store.Put(rec)
		if err != nil {
			s.state = StateFailed
			return ioError(s.name, err)
		}
		if !ok {
			log.Warn(s.name, rec.Identity+": no package declaration, not cached")
			continue
		}
		s.merged++
	}
	s.state = StateMerged
	return nil
}

// javacArgs follows the fixed layout: release flags, output dir, classpath,
// an empty sourcepath and then the files.
func (s *CompileStage) javacArgs() []string {
	cfg := s.env.Config
	cp := []string{cfg.Toolchain.PlatformJar}
	for _, lib := range cfg.Project.Libraries {
		if fileExists(lib.ClassesJar) {
			cp = append(cp, lib.ClassesJar)
		}
	}
	if cfg.Toolchain.RuntimeJar != "" {
		cp = append(cp, cfg.Toolchain.RuntimeJar)
	}
	args := []string{
		"-source", javaRelease,
		"-target", javaRelease,
		"-d", cfg.ClassesDir(),
		"-classpath", strings.Join(cp, string(filepath.ListSeparator)),
		"-sourcepath", "",
	}
	for _, rec := range s.delta.ToCompile {
		args = append(args, rec.Path)
	}
	return args
}

func (s *CompileStage) deleteOutputs(rec snapshot.Record) {
	removed, err := deleteClassOutputs(s.env.Config.ClassesDir(), rec.PackageDir(), rec.BaseName())
	if err != nil {
		s.env.log().Warn(s.name, "Failed to delete class outputs of "+rec.Identity+": "+err.Error())
	}
	for _, p := range removed {
		s.env.log().Debug(s.name, "deleted "+filepath.Base(p))
	}
}

func init() {
	Register(NameCompile, func(env Env) Stage { return NewCompileStage(env) })
}
