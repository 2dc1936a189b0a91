package root

import (
	"github.com/flarebyte/apk-forge/cmd/apkforge/build"
	"github.com/flarebyte/apk-forge/cmd/apkforge/clean"
	"github.com/flarebyte/apk-forge/cmd/apkforge/plan"
	"github.com/flarebyte/apk-forge/cmd/apkforge/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for apkforge.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apkforge",
		Short: "CLI: Incremental Android application archive builder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(version.VersionCmd)
	cmd.AddCommand(build.Cmd)
	cmd.AddCommand(plan.Cmd)
	cmd.AddCommand(clean.Cmd)

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
