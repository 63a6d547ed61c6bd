package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"supreme-bot/internal/config"
	"supreme-bot/internal/storage"
)

func newTrainingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Manage trained replies",
	}
	cmd.AddCommand(newTrainingAddCmd(), newTrainingListCmd(), newTrainingDeleteCmd())
	return cmd
}

func newTrainingAddCmd() *cobra.Command {
	var entry storage.Training
	cmd := &cobra.Command{
		Use:   "add <query> <response>",
		Short: "Add a trained reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry.Query, entry.Response = args[0], args[1]
			if strings.TrimSpace(entry.Query) == "" || strings.TrimSpace(entry.Response) == "" {
				return fmt.Errorf("query and response must not be empty")
			}
			return withStore(func(store *storage.Store) error {
				id, err := store.AddTraining(cmd.Context(), entry)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved entry #%d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entry.Category, "category", "general", "entry category")
	cmd.Flags().StringVar(&entry.DataPointName, "data-point", "", "store the user's next message under this name")
	cmd.Flags().Int64Var(&entry.NextStepID, "next-step", 0, "entry id to send after the user answers")
	return cmd
}

func newTrainingListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trained replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *storage.Store) error {
				var (
					entries []storage.Training
					err     error
				)
				if category != "" {
					entries, err = store.ListTrainingByCategory(cmd.Context(), category)
				} else {
					entries, err = store.ListTraining(cmd.Context())
				}
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No training entries.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCATEGORY\tUSED\tQUERY\tNEXT")
				for _, e := range entries {
					next := "-"
					if e.Chains() {
						next = e.DataPointName
						if e.NextStepID != 0 {
							next += " -> #" + strconv.FormatInt(e.NextStepID, 10)
						}
					}
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", e.ID, e.Category, e.UsageCount, e.Query, next)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list this category")
	return cmd
}

func newTrainingDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a trained reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			return withStore(func(store *storage.Store) error {
				deleted, err := store.DeleteTraining(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("entry #%d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry #%d\n", id)
				return nil
			})
		},
	}
}

// withStore opens the configured SQLite database for a one-shot command.
func withStore(fn func(*storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
