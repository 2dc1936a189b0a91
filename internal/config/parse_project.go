package config

import (
	"fmt"

	"cuelang.org/go/cue"
)

// parseProjectSection extracts project.* and applies version defaults.
func parseProjectSection(v cue.Value) (Project, error) {
	p := Project{
		MinSdk:      DefaultMinSdk,
		TargetSdk:   DefaultTargetSdk,
		VersionCode: DefaultVersionCode,
		VersionName: DefaultVersionName,
	}
	f, ok := section(v, "project")
	if !ok {
		return p, fmt.Errorf("missing required field: project")
	}
	err := firstErr(
		f.reqString("name", &p.Name),
		f.reqString("sourceDir", &p.SourceDir),
		f.reqString("resourceDir", &p.ResourceDir),
		f.reqString("manifest", &p.Manifest),
		f.reqString("outputDir", &p.OutputDir),
		f.optString("assetsDir", &p.AssetsDir),
		f.optInt("minSdk", &p.MinSdk),
		f.optInt("targetSdk", &p.TargetSdk),
		f.optInt("versionCode", &p.VersionCode),
		f.optString("versionName", &p.VersionName),
	)
	if err != nil {
		return p, err
	}
	if p.MinSdk > p.TargetSdk {
		return p, fmt.Errorf("invalid value for project.minSdk: %d exceeds targetSdk %d", p.MinSdk, p.TargetSdk)
	}
	libs, err := parseLibraries(f)
	if err != nil {
		return p, err
	}
	p.Libraries = libs
	return p, nil
}

func parseLibraries(f field) ([]Library, error) {
	lv, q := f.child("libraries")
	if !lv.Exists() {
		return nil, nil
	}
	if lv.Kind() != cue.ListKind {
		return nil, fmt.Errorf("invalid type for field: %s (expected list)", q)
	}
	it, err := lv.List()
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %v", q, err)
	}
	var out []Library
	for i := 0; it.Next(); i++ {
		ef := field{v: it.Value(), qualified: fmt.Sprintf("%s[%d]", q, i)}
		var lib Library
		err := firstErr(
			ef.reqString("name", &lib.Name),
			ef.reqString("path", &lib.Path),
			ef.optString("resourceDir", &lib.ResourceDir),
			ef.optString("classesJar", &lib.ClassesJar),
			ef.optString("package", &lib.Package),
			ef.optBool("requiresResources", &lib.RequiresResources),
		)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, nil
}
