// Package buildinfo resolves the version metadata of apkforge. Values are set
// with -ldflags; cli.Version and cli.Date fill the gaps for release scripts.
package buildinfo

import (
	"strings"

	"github.com/flarebyte/apk-forge/cli"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
	BuiltBy = ""
)

// Info is the resolved metadata of the running binary.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	BuiltBy string `json:"built_by"`
}

// Current applies the fallbacks: cli values first, then "dev".
func Current() Info {
	i := Info{Version: Version, Commit: Commit, Date: Date, BuiltBy: BuiltBy}
	if i.Version == "" {
		i.Version = cli.Version
	}
	if i.Version == "" {
		i.Version = "dev"
	}
	if i.Date == "" {
		i.Date = cli.Date
	}
	return i
}

// ShortCommit is the first seven characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

func (i Info) String() string {
	var parts []string
	if i.Commit != "" {
		parts = append(parts, "commit="+i.ShortCommit())
	}
	if i.Date != "" {
		parts = append(parts, "date="+i.Date)
	}
	if len(parts) == 0 {
		return i.Version
	}
	return i.Version + " (" + strings.Join(parts, ", ") + ")"
}

// Summary returns a concise single-line version string.
func Summary() string { return Current().String() }
