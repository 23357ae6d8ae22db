package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"teanga/internal/api"
	"teanga/internal/config"
	"teanga/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the episode queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				statuses, err := parseStatuses(listStatuses)
				if err != nil {
					return err
				}

				service := api.NewEpisodeService(st)
				episodes, err := service.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(episodes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(episodes))
				for _, episode := range episodes {
					rows = append(rows, []string{
						episode.ID,
						episode.Title,
						episode.Status,
						shortTimestamp(episode.PublishedAt),
						truncate(episode.ErrorMessage, 48),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Published", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (pending, processing, completed, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var retryAll bool

	cmd := &cobra.Command{
		Use:   "retry [episode-id...]",
		Short: "Move failed episodes back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !retryAll {
				return errors.New("provide episode IDs or --all")
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stdout := cmd.OutOrStdout()

				if retryAll {
					updated, err := st.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "Retried %d failed episode(s)\n", updated)
					return nil
				}

				result, err := api.RetryFailedEpisodes(cmd.Context(), api.NewEpisodeService(st), args)
				if err != nil {
					return err
				}
				for _, entry := range result.Episodes {
					switch entry.Outcome {
					case api.RetryUpdated:
						fmt.Fprintf(stdout, "%s: retried\n", entry.ID)
					case api.RetryNotFailed:
						fmt.Fprintf(stdout, "%s: not in failed state, skipped\n", entry.ID)
					case api.RetryNotFound:
						fmt.Fprintf(stdout, "%s: not found\n", entry.ID)
					}
				}
				fmt.Fprintf(stdout, "Retried %d episode(s)\n", result.UpdatedCount)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&retryAll, "all", false, "Retry every failed episode")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <episode-id>...",
		Short: "Remove episodes and their history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stdout := cmd.OutOrStdout()
				result, err := api.RemoveEpisodes(cmd.Context(), api.NewEpisodeService(st), args)
				if err != nil {
					return err
				}
				for _, entry := range result.Episodes {
					switch entry.Outcome {
					case api.RemoveUpdated:
						fmt.Fprintf(stdout, "%s: removed\n", entry.ID)
					case api.RemoveProcessing:
						fmt.Fprintf(stdout, "%s: currently processing, skipped\n", entry.ID)
					case api.RemoveNotFound:
						fmt.Fprintf(stdout, "%s: not found\n", entry.ID)
					}
				}
				fmt.Fprintf(stdout, "Removed %d episode(s)\n", result.RemovedCount)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear completed episodes (or failed with --failed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				service := api.NewEpisodeService(st)
				var cleared int64
				var err error
				label := "completed"
				if clearFailed {
					label = "failed"
					cleared, err = service.ClearFailed(cmd.Context())
				} else {
					cleared, err = service.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s episode(s)\n", cleared, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Clear failed episodes instead of completed")
	return cmd
}

func parseStatuses(values []string) ([]store.Status, error) {
	statuses := make([]store.Status, 0, len(values))
	for _, value := range values {
		status, ok := store.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// shortTimestamp trims API timestamps down to a table-friendly form.
func shortTimestamp(value string) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse("2006-01-02T15:04:05.000Z07:00", value)
	if err != nil {
		return value
	}
	return parsed.Format("2006-01-02 15:04")
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
