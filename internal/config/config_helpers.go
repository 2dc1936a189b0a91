package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// compileCUE loads and compiles a CUE file at the given path.
func compileCUE(path string) (cue.Value, error) {
	if filepath.Ext(path) != ".cue" {
		return cue.Value{}, errors.New("unsupported config format: expected .cue")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("invalid config: %v", err)
	}
	return v, nil
}

func requireStringField(v cue.Value, name string) error {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return fmt.Errorf("missing required field: %s", name)
	}
	if f.Kind() != cue.StringKind {
		return fmt.Errorf("invalid type for field: %s (expected string)", name)
	}
	return nil
}

// field looks up name under v; qualified is used in error messages.
type field struct {
	v         cue.Value
	qualified string
}

func section(v cue.Value, name string) (field, bool) {
	sv := v.LookupPath(cue.ParsePath(name))
	return field{v: sv, qualified: name}, sv.Exists()
}

func (f field) child(name string) (cue.Value, string) {
	return f.v.LookupPath(cue.ParsePath(name)), f.qualified + "." + name
}

func (f field) optString(name string, dst *string) error {
	cv, q := f.child(name)
	if !cv.Exists() {
		return nil
	}
	if cv.Kind() != cue.StringKind {
		return fmt.Errorf("invalid type for field: %s (expected string)", q)
	}
	return cv.Decode(dst)
}

func (f field) reqString(name string, dst *string) error {
	cv, q := f.child(name)
	if !cv.Exists() {
		return fmt.Errorf("missing required field: %s", q)
	}
	if err := f.optString(name, dst); err != nil {
		return err
	}
	if *dst == "" {
		return fmt.Errorf("missing required field: %s", q)
	}
	return nil
}

func (f field) optInt(name string, dst *int) error {
	cv, q := f.child(name)
	if !cv.Exists() {
		return nil
	}
	if cv.Kind() != cue.IntKind {
		return fmt.Errorf("invalid type for field: %s (expected int)", q)
	}
	return cv.Decode(dst)
}

func (f field) optBool(name string, dst *bool) error {
	cv, q := f.child(name)
	if !cv.Exists() {
		return nil
	}
	if cv.Kind() != cue.BoolKind {
		return fmt.Errorf("invalid type for field: %s (expected bool)", q)
	}
	return cv.Decode(dst)
}

func (f field) optStrings(name string, dst *[]string) error {
	cv, q := f.child(name)
	if !cv.Exists() {
		return nil
	}
	if cv.Kind() != cue.ListKind {
		return fmt.Errorf("invalid type for field: %s (expected list of strings)", q)
	}
	if err := cv.Decode(dst); err != nil {
		return fmt.Errorf("invalid type for field: %s (expected list of strings)", q)
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
