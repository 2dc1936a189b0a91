package version

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/flarebyte/apk-forge/cli"
	"github.com/flarebyte/apk-forge/internal/buildinfo"
	"github.com/spf13/cobra"
)

var (
	flagShort bool
	flagJSON  bool
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(os.Stdout, os.Stderr)
	},
}

func printVersion(stdout, stderr io.Writer) error {
	if flagShort || !flagJSON {
		_, err := fmt.Fprintf(stdout, "apkforge %s\n", buildinfo.Summary())
		return err
	}

	// JSON goes to stdout, the human line to stderr.
	_, _ = fmt.Fprintf(stderr, "apkforge version: %s\n", buildinfo.Summary())
	out := details{
		Info:      buildinfo.Current(),
		Release:   cli.NiceDate(),
		Go:        runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type details struct {
	buildinfo.Info
	Release   string `json:"release"`
	Go        string `json:"go"`
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
	Timestamp string `json:"timestamp"`
}

func init() {
	VersionCmd.Flags().BoolVar(&flagShort, "short", false, "Print only the version string")
	VersionCmd.Flags().BoolVar(&flagJSON, "json", false, "Print detailed JSON version info")
}
