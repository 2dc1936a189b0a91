package config

import (
	"cuelang.org/go/cue"
)

func parseToolchainSection(v cue.Value) (Toolchain, error) {
	t := Toolchain{AAPT2: defaultAAPT2Program, Javac: defaultJavacProgram, D8: defaultD8Program}
	f, ok := section(v, "toolchain")
	if !ok {
		return t, nil
	}
	err := firstErr(
		f.optString("aapt2", &t.AAPT2),
		f.optString("javac", &t.Javac),
		f.optString("platformJar", &t.PlatformJar),
		f.optString("runtimeJar", &t.RuntimeJar),
		f.optInt("timeoutMs", &t.TimeoutMs),
	)
	if err != nil {
		return t, err
	}
	d8, _ := f.child("d8")
	if d8.Exists() {
		df := field{v: d8, qualified: f.qualified + ".d8"}
		if d8.Kind() == cue.StringKind {
			_ = d8.Decode(&t.D8)
		} else if err := firstErr(df.optString("program", &t.D8), df.optStrings("args", &t.D8Args)); err != nil {
			return t, err
		}
	}
	return t, nil
}

func parseSourcesSection(v cue.Value) (Sources, error) {
	s := Sources{Suffix: DefaultSuffix, Modification: ModeTimestamp}
	f, ok := section(v, "sources")
	if !ok {
		return s, nil
	}
	err := firstErr(
		f.optString("suffix", &s.Suffix),
		f.optBool("noGitignore", &s.NoGitignore),
		f.optString("filter", &s.Filter),
		f.optString("modification", &s.Modification),
		f.optBool("explain", &s.Explain),
	)
	if s.Suffix == "" {
		s.Suffix = DefaultSuffix
	}
	return s, err
}

func parsePublishSection(v cue.Value) (Publish, error) {
	var p Publish
	f, ok := section(v, "publish")
	if !ok {
		return p, nil
	}
	return p, firstErr(
		f.optBool("enabled", &p.Enabled),
		f.optString("endpoint", &p.Endpoint),
		f.optString("bucket", &p.Bucket),
		f.optString("region", &p.Region),
		f.optString("accessKey", &p.AccessKey),
		f.optString("secretKey", &p.SecretKey),
		f.optBool("useSSL", &p.UseSSL),
		f.optString("prefix", &p.Prefix),
	)
}

func parseUISection(v cue.Value) (UI, error) {
	var u UI
	f, ok := section(v, "ui")
	if !ok {
		return u, nil
	}
	return u, f.optBool("progress", &u.Progress)
}
