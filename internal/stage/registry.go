package stage

import (
	"fmt"
	"sort"

	"github.com/flarebyte/apk-forge/internal/config"
)

// Factory builds a stage bound to env.
type Factory func(env Env) Stage

var registry = map[string]Factory{}

// Register adds a stage factory under name.
func Register(name string, f Factory) {
	registry[name] = f
}

// New builds the stage registered under name.
func New(name string, env Env) (Stage, error) {
	f, ok := registry[name]
	if !ok {
		return nil, ErrUnknown{name: name}
	}
	return f(env), nil
}

// Names lists registered stages in lexical order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ErrUnknown is returned when a stage is not found.
type ErrUnknown struct{ name string }

func (e ErrUnknown) Error() string { return "unknown stage: " + e.name }

// Stage names in pipeline order.
const (
	NameResources = "resources"
	NameCompile   = "compile"
	NameDex       = "dex"
	NamePackage   = "package"
	NamePublish   = "publish"
)

// Actions selectable from the command line.
const (
	ActionBuild   = "build"
	ActionCompile = "compile"
)

// Actions returns the ordered stage names for action.
func Actions(action string, cfg config.Build) ([]string, error) {
	switch action {
	case "", ActionBuild:
		names := []string{NameResources, NameCompile, NameDex, NamePackage}
		if cfg.Publish.Enabled {
			names = append(names, NamePublish)
		}
		return names, nil
	case ActionCompile:
		return []string{NameResources, NameCompile}, nil
	default:
		return nil, fmt.Errorf("unknown action: %s (expected %s or %s)", action, ActionBuild, ActionCompile)
	}
}

// Build resolves action into ready-to-run stages.
func Build(action string, env Env) ([]Stage, error) {
	names, err := Actions(action, env.Config)
	if err != nil {
		return nil, err
	}
	out := make([]Stage, 0, len(names))
	for _, n := range names {
		s, err := New(n, env)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
