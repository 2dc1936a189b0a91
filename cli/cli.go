// Package cli holds the release values stamped by the apkforge release
// script.
package cli

import "strings"

// Set with:
//
//	-ldflags "-X 'github.com/flarebyte/apk-forge/cli.Version=0.4.0' -X 'github.com/flarebyte/apk-forge/cli.Date=2026-10-19'"
var (
	Version string
	Date    string
)

// NiceDate renders Date with spaces, e.g. "2026 10 19".
func NiceDate() string {
	return strings.ReplaceAll(Date, "-", " ")
}
