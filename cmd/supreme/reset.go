package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"supreme-bot/internal/audit"
	"supreme-bot/internal/config"
	"supreme-bot/internal/flow"
	"supreme-bot/internal/kv"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user-id>",
		Short: "Let a user submit the MM application again",
		Long:  `Clears the user's completed mark and any application still in progress.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := config.BuildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			backend, err := kv.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("kv store: %w", err)
			}
			defer backend.Close()

			engine, err := applicationEngine(cfg, backend, logger, flow.WithObserver(audit.NewLogger(store, logger)))
			if err != nil {
				return err
			}
			engine.Reset(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Reset application for %s\n", args[0])
			return nil
		},
	}
}
