package clean

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/flarebyte/apk-forge/cmd/apkforge/exitcode"
	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/stage"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	all     bool
)

// Cmd represents the `apkforge clean` command.
var Cmd = &cobra.Command{
	Use:           "clean",
	Short:         "Remove build outputs",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(os.Stdout)
	},
}

func init() {
	Cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to project config file (.cue)")
	Cmd.Flags().BoolVar(&all, "all", false, "Also remove the compiled resource cache")
}

func run(w io.Writer) error {
	if cfgPath == "" {
		return exitcode.UsageError(errors.New("missing required flag: --config"))
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return exitcode.UsageError(err)
	}
	removed, err := stage.Clean(cfg, all)
	if err != nil {
		return err
	}
	if removed == nil {
		removed = []string{}
	}
	b, err := json.Marshal(map[string]any{"ok": true, "removed": removed})
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
