// Package config loads the CUE project description consumed by every build
// stage and applies .env and environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"

	"github.com/flarebyte/apk-forge/internal/luafilter"
)

// Defaults applied when the project omits a field.
const (
	DefaultMinSdk       = 21
	DefaultTargetSdk    = 28
	DefaultVersionCode  = 1
	DefaultVersionName  = "1.0"
	DefaultSuffix       = ".java"
	ModeTimestamp       = "timestamp"
	ModeContent         = "content"
	defaultAAPT2Program = "aapt2"
	defaultJavacProgram = "javac"
	defaultD8Program    = "d8"
)

// Build is the fully resolved configuration of one project build. Paths are
// absolute once Load returns.
type Build struct {
	ConfigPath    string
	ConfigVersion string
	Project       Project
	Toolchain     Toolchain
	Sources       Sources
	Publish       Publish
	UI            UI
}

// Project describes the application being built.
type Project struct {
	Name        string
	SourceDir   string
	ResourceDir string
	Manifest    string
	OutputDir   string
	AssetsDir   string
	MinSdk      int
	TargetSdk   int
	VersionCode int
	VersionName string
	Libraries   []Library
}

// Library is a prebuilt dependency with its own resources and classes.
type Library struct {
	Name              string
	Path              string
	ResourceDir       string
	ClassesJar        string
	Package           string
	RequiresResources bool
}

// Toolchain locates the external programs. Program names without a path
// separator are looked up on PATH.
type Toolchain struct {
	AAPT2       string
	Javac       string
	D8          string
	D8Args      []string
	PlatformJar string
	RuntimeJar  string
	TimeoutMs   int
}

// Sources tunes source enumeration and change detection.
type Sources struct {
	Suffix       string
	NoGitignore  bool
	Filter       string
	Modification string
	Explain      bool
}

// Publish configures the optional upload of the final archive.
type Publish struct {
	Enabled   bool
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// UI holds presentation toggles.
type UI struct {
	Progress bool
}

// Load reads the CUE file at path and returns a validated Build. The .env
// files and process environment are consulted for toolchain and credential
// overrides.
func Load(path string) (Build, error) {
	return LoadWithEnv(path, OSEnv())
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, env Lookup) (Build, error) {
	v, err := compileCUE(path)
	if err != nil {
		return Build{}, err
	}
	if err := requireStringField(v, "configVersion"); err != nil {
		return Build{}, err
	}
	var b Build
	_ = v.LookupPath(cue.ParsePath("configVersion")).Decode(&b.ConfigVersion)
	if err := checkConfigVersion(b.ConfigVersion); err != nil {
		return Build{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Build{}, err
	}
	b.ConfigPath = abs

	if b.Project, err = parseProjectSection(v); err != nil {
		return Build{}, err
	}
	if b.Toolchain, err = parseToolchainSection(v); err != nil {
		return Build{}, err
	}
	if b.Sources, err = parseSourcesSection(v); err != nil {
		return Build{}, err
	}
	if b.Publish, err = parsePublishSection(v); err != nil {
		return Build{}, err
	}
	if b.UI, err = parseUISection(v); err != nil {
		return Build{}, err
	}

	if env != nil {
		applyEnvOverrides(&b, withDotEnv(env, filepath.Dir(abs)))
	}
	b.resolvePaths(filepath.Dir(abs))
	if err := b.Validate(); err != nil {
		return Build{}, err
	}
	return b, nil
}

// Validate checks cross-field constraints that CUE decoding cannot express.
func (b Build) Validate() error {
	if b.Toolchain.PlatformJar == "" {
		return errors.New("missing required field: toolchain.platformJar")
	}
	switch b.Sources.Modification {
	case ModeTimestamp, ModeContent:
	default:
		return fmt.Errorf("invalid value for sources.modification: %q (expected %q or %q)", b.Sources.Modification, ModeTimestamp, ModeContent)
	}
	seen := map[string]struct{}{}
	for i, lib := range b.Project.Libraries {
		if _, dup := seen[lib.Name]; dup {
			return fmt.Errorf("duplicate library name: %s (project.libraries[%d])", lib.Name, i)
		}
		seen[lib.Name] = struct{}{}
		if lib.Name+".zip" == ProjectResArchive || strings.ContainsAny(lib.Name, `/\`) {
			return fmt.Errorf("invalid value for project.libraries[%d].name: %q", i, lib.Name)
		}
		if lib.RequiresResources && lib.Package == "" {
			return fmt.Errorf("missing required field: project.libraries[%d].package (requiresResources is set)", i)
		}
	}
	if b.Publish.Enabled && (b.Publish.Endpoint == "" || b.Publish.Bucket == "") {
		return errors.New("publish.enabled requires publish.endpoint and publish.bucket")
	}
	if strings.TrimSpace(b.Sources.Filter) != "" {
		p, err := luafilter.Compile("sources.filter", b.Sources.Filter, 0)
		if err != nil {
			return fmt.Errorf("invalid sources.filter: %v", err)
		}
		p.Close()
	}
	return nil
}

func (b *Build) resolvePaths(dir string) {
	p := &b.Project
	for _, s := range []*string{&p.SourceDir, &p.ResourceDir, &p.Manifest, &p.OutputDir, &p.AssetsDir} {
		*s = resolvePath(dir, *s)
	}
	for i := range p.Libraries {
		lib := &p.Libraries[i]
		lib.Path = resolvePath(dir, lib.Path)
		if lib.ResourceDir == "" {
			lib.ResourceDir = filepath.Join(lib.Path, "res")
		} else {
			lib.ResourceDir = resolvePath(dir, lib.ResourceDir)
		}
		if lib.ClassesJar == "" {
			lib.ClassesJar = filepath.Join(lib.Path, "classes.jar")
		} else {
			lib.ClassesJar = resolvePath(dir, lib.ClassesJar)
		}
	}
	t := &b.Toolchain
	t.PlatformJar = resolvePath(dir, t.PlatformJar)
	t.RuntimeJar = resolvePath(dir, t.RuntimeJar)
	for _, s := range []*string{&t.AAPT2, &t.Javac, &t.D8} {
		if strings.ContainsRune(*s, '/') || strings.ContainsRune(*s, filepath.Separator) {
			*s = resolvePath(dir, *s)
		}
	}
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(dir, p))
}
