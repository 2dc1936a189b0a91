package config

import (
	"fmt"
	"slices"
	"strings"
)

// CurrentConfigVersion is the configVersion written by new projects.
const CurrentConfigVersion = "1"

// SupportedConfigVersions lists every configVersion Load accepts.
var SupportedConfigVersions = []string{CurrentConfigVersion}

func IsSupportedConfigVersion(v string) bool {
	return slices.Contains(SupportedConfigVersions, v)
}

func SupportedConfigVersionsCSV() string {
	return strings.Join(SupportedConfigVersions, ", ")
}

func checkConfigVersion(v string) error {
	if IsSupportedConfigVersion(v) {
		return nil
	}
	return fmt.Errorf("unsupported configVersion: %q (supported: %s)", v, SupportedConfigVersionsCSV())
}
