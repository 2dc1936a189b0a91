// Package report writes the canonical build-report.yaml left in the output
// directory after every build. Keys are sorted so rewrites are byte-stable.
package report

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Stage summarizes one executed stage.
type Stage struct {
	Name       string
	Successful bool
	ElapsedMs  int64
	Diagnostic string
	ErrorKind  string
}

// Compile summarizes the incremental compile step.
type Compile struct {
	State     string
	ToCompile []string
	ToRemove  []string
}

// Build is the content of one report.
type Build struct {
	Project     string
	Action      string
	Failed      bool
	Message     string
	FailedStage string
	ElapsedMs   int64
	Archive     string
	Stages      []Stage
	Compile     *Compile
}

func (b Build) toMap() map[string]any {
	outcome := "success"
	if b.Failed {
		outcome = "failed"
	}
	m := map[string]any{
		"project":   b.Project,
		"action":    b.Action,
		"outcome":   outcome,
		"message":   b.Message,
		"elapsedMs": b.ElapsedMs,
	}
	if b.FailedStage != "" {
		m["failedStage"] = b.FailedStage
	}
	if b.Archive != "" {
		m["archive"] = b.Archive
	}
	stages := make([]any, 0, len(b.Stages))
	for _, s := range b.Stages {
		sm := map[string]any{"name": s.Name, "successful": s.Successful, "elapsedMs": s.ElapsedMs}
		if s.Diagnostic != "" {
			sm["diagnostic"] = s.Diagnostic
		}
		if s.ErrorKind != "" {
			sm["errorKind"] = s.ErrorKind
		}
		stages = append(stages, sm)
	}
	m["stages"] = stages
	if b.Compile != nil {
		m["compile"] = map[string]any{
			"state":     b.Compile.State,
			"toCompile": anyList(b.Compile.ToCompile),
			"toRemove":  anyList(b.Compile.ToRemove),
		}
	}
	return m
}

func anyList(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// Marshal returns canonical YAML bytes for b.
func Marshal(b Build) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(canonicalNode(b.toMap())); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	out = append(out, '\n')
	return out, nil
}

// Write replaces path with the canonical YAML for b.
func Write(path string, b Build) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads a report back as generic YAML.
func Read(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func scalarFrom(v any) *yaml.Node {
	n := &yaml.Node{}
	_ = n.Encode(v)
	return n
}

func canonicalNode(v any) *yaml.Node {
	switch x := v.(type) {
	case map[string]any:
		n := &yaml.Node{Kind: yaml.MappingNode}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Content = append(n.Content, scalarNode(k), canonicalNode(x[k]))
		}
		return n
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode}
		for _, it := range x {
			n.Content = append(n.Content, canonicalNode(it))
		}
		return n
	default:
		return scalarFrom(x)
	}
}
