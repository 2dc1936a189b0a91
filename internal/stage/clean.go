package stage

import (
	"os"
	"path/filepath"

	"github.com/flarebyte/apk-forge/internal/config"
)

// Clean removes the build outputs of cfg and returns the removed roots. The
// compiled resource cache under bin/res survives unless all is set.
func Clean(cfg config.Build, all bool) ([]string, error) {
	var removed []string
	bin := cfg.BinDir()
	if dirExists(bin) {
		if all {
			if err := os.RemoveAll(bin); err != nil {
				return removed, err
			}
		} else if err := clearExcept(bin, config.ResCacheDirName); err != nil {
			return removed, err
		}
		removed = append(removed, bin)
	}
	for _, dir := range []string{cfg.GenDir(), filepath.Join(cfg.Project.OutputDir, config.IntermediateDirName)} {
		if !dirExists(dir) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, err
		}
		removed = append(removed, dir)
	}
	return removed, nil
}
