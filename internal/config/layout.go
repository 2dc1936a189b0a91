package config

import "path/filepath"

// Output tree layout under Project.OutputDir.
const (
	BinDirName          = "bin"
	ResCacheDirName     = "res"
	GenDirName          = "gen"
	IntermediateDirName = "intermediate"
	LinkedResourcesName = "generated.apk.res"
	PrimaryDexName      = "classes.dex"
	ArchiveName         = "gen.apk"
	ProjectResArchive   = "project.zip"
	ReportName          = "build-report.yaml"
)

func (b Build) BinDir() string { return filepath.Join(b.Project.OutputDir, BinDirName) }

// ResCacheDir holds one compiled resource archive per resource root.
func (b Build) ResCacheDir() string { return filepath.Join(b.BinDir(), ResCacheDirName) }

// GenDir receives generated accessor sources from the resource linker.
func (b Build) GenDir() string { return filepath.Join(b.Project.OutputDir, GenDirName) }

// SnapshotDir is the mirrored source tree of the last successful compile.
func (b Build) SnapshotDir() string {
	return filepath.Join(b.Project.OutputDir, IntermediateDirName, "java")
}

// ClassesDir is the compiled output cache.
func (b Build) ClassesDir() string {
	return filepath.Join(b.Project.OutputDir, IntermediateDirName, "classes")
}

func (b Build) LinkedResources() string { return filepath.Join(b.BinDir(), LinkedResourcesName) }

func (b Build) PrimaryDex() string { return filepath.Join(b.BinDir(), PrimaryDexName) }

func (b Build) ArchivePath() string { return filepath.Join(b.BinDir(), ArchiveName) }

func (b Build) ReportPath() string { return filepath.Join(b.Project.OutputDir, ReportName) }

// LibraryResArchive is the cached compiled resources of lib.
func (b Build) LibraryResArchive(lib Library) string {
	return filepath.Join(b.ResCacheDir(), lib.Name+".zip")
}

func (b Build) ProjectResArchive() string {
	return filepath.Join(b.ResCacheDir(), ProjectResArchive)
}
