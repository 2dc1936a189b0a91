package plan

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/flarebyte/apk-forge/cmd/apkforge/exitcode"
	"github.com/flarebyte/apk-forge/internal/config"
	"github.com/flarebyte/apk-forge/internal/snapshot"
	"github.com/flarebyte/apk-forge/internal/stage"
	"github.com/spf13/cobra"
)

var cfgPath string

// Cmd represents the `apkforge plan` command.
var Cmd = &cobra.Command{
	Use:           "plan",
	Short:         "Print the sources the next build would compile and remove",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(os.Stdout)
	},
}

func init() {
	Cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to project config file (.cue)")
}

type planOutput struct {
	ToCompile []string `json:"toCompile"`
	Modified  []string `json:"modified"`
	ToRemove  []string `json:"toRemove"`
}

func run(w io.Writer) error {
	if cfgPath == "" {
		return exitcode.UsageError(errors.New("missing required flag: --config"))
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return exitcode.UsageError(err)
	}
	d, err := stage.Plan(cfg, snapshot.NewResolver(0))
	if err != nil {
		return err
	}
	out := planOutput{
		ToCompile: snapshot.Identities(d.ToCompile),
		Modified:  []string{},
		ToRemove:  snapshot.Identities(d.ToRemove),
	}
	for _, ch := range d.Modified {
		out.Modified = append(out.Modified, ch.New.Identity)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
