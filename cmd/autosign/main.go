package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/autosign/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	validArgs := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		validArgs = append(validArgs, string(c))
	}

	root := &cobra.Command{
		Use:           "autosign [signin|signout|loop|check|healthcheck]",
		Short:         "NTU attendance auto sign-in/out",
		Long:          "Signs in and out of the NTU attendance portal on a deterministic weekday schedule and reports every attempt.",
		ValidArgs:     validArgs,
		Args:          cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := app.ParseCommand(args)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), os.Stdout, command, configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to config file")

	return root
}
