package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCLIContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "vitrine",
		Short:         "Vitrine social posting CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if runsWithoutConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to the configuration file")

	rootCmd.AddCommand(
		newRunCommand(ctx),
		newInitStoreCommand(ctx),
		newCatalogCommand(ctx),
		newAuthCommand(ctx),
		newLogCommand(ctx),
		newConfigCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return rootCmd
}
