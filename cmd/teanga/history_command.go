package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"teanga/internal/api"
	"teanga/internal/config"
	"teanga/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <episode-id>",
		Short: "Show an episode's per-attempt processing log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				episodeID := args[0]
				service := api.NewEpisodeService(st)

				episode, err := service.Describe(cmd.Context(), episodeID)
				if err != nil {
					return err
				}
				if episode == nil {
					return fmt.Errorf("episode %q not found", episodeID)
				}

				records, err := service.History(cmd.Context(), episodeID)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "%s [%s] %s\n", episode.ID, episode.Status, episode.Title)
				if len(records) == 0 {
					fmt.Fprintln(stdout, "No processing history yet")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						record.Step,
						fmt.Sprintf("%d", record.Attempt),
						record.Status,
						record.ErrorKind,
						truncate(record.ErrorMessage, 48),
						shortTimestamp(record.FinishedAt),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Step", "Attempt", "Status", "Kind", "Error", "Finished"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
