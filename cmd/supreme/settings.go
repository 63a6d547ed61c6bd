package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"supreme-bot/internal/storage"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change runtime settings",
		Long: `Runtime settings live in the database and are read on every message:
  ai_enabled            "false" turns automatic ticket replies off everywhere
  external_bot_id       ticket bot whose messages are logged
  external_category_id  category the external ticket bot opens channels in`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store *storage.Store) error {
					value, err := store.GetSetting(cmd.Context(), args[0], "")
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), value)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change a setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store *storage.Store) error {
					if err := store.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
					return nil
				})
			},
		},
	)
	return cmd
}
