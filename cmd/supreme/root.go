package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "supreme",
		Short:         "Supreme BOT runs the MM application and ticket flows on Discord",
		Long:          `Supreme BOT walks applicants through the MM trainee application in DMs and answers ticket channels with trained or generated replies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(
		newRunCmd(),
		newResetCmd(),
		newTrainingCmd(),
		newStatsCmd(),
		newSettingsCmd(),
	)
	return root
}
