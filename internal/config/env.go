package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables overriding toolchain and publish values.
const (
	EnvAAPT2         = "APKFORGE_AAPT2"
	EnvJavac         = "APKFORGE_JAVAC"
	EnvD8            = "APKFORGE_D8"
	EnvPlatformJar   = "APKFORGE_PLATFORM_JAR"
	EnvRuntimeJar    = "APKFORGE_RUNTIME_JAR"
	EnvPublishAccess = "APKFORGE_PUBLISH_ACCESS_KEY"
	EnvPublishSecret = "APKFORGE_PUBLISH_SECRET_KEY"
	dotEnvFile       = ".env"
)

// Lookup returns the value of an environment variable and whether it is set.
type Lookup func(key string) (string, bool)

// OSEnv reads the process environment.
func OSEnv() Lookup { return os.LookupEnv }

// MapEnv serves lookups from m.
func MapEnv(m map[string]string) Lookup {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// withDotEnv layers .env files under env: the working directory file first,
// then the one next to the config. Real environment values always win and
// the process environment is never modified.
func withDotEnv(env Lookup, configDir string) Lookup {
	var files []string
	if wd, err := os.Getwd(); err == nil {
		files = appendIfFile(files, filepath.Join(wd, dotEnvFile))
	}
	files = appendIfFile(files, filepath.Join(configDir, dotEnvFile))
	if len(files) == 0 {
		return env
	}
	vals, err := godotenv.Read(files...)
	if err != nil {
		return env
	}
	return func(k string) (string, bool) {
		if v, ok := env(k); ok {
			return v, true
		}
		v, ok := vals[k]
		return v, ok
	}
}

func appendIfFile(files []string, p string) []string {
	for _, f := range files {
		if f == p {
			return files
		}
	}
	if st, err := os.Stat(p); err == nil && !st.IsDir() {
		return append(files, p)
	}
	return files
}

// applyEnvOverrides runs before path resolution, so relative override paths
// are taken relative to the config directory.
func applyEnvOverrides(b *Build, env Lookup) {
	set := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvAAPT2, &b.Toolchain.AAPT2)
	set(EnvJavac, &b.Toolchain.Javac)
	set(EnvD8, &b.Toolchain.D8)
	set(EnvPlatformJar, &b.Toolchain.PlatformJar)
	set(EnvRuntimeJar, &b.Toolchain.RuntimeJar)
	set(EnvPublishAccess, &b.Publish.AccessKey)
	set(EnvPublishSecret, &b.Publish.SecretKey)
}
