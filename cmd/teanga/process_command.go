package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/pipeline"
	"teanga/internal/store"
	"teanga/internal/workflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		force      bool
		forceSteps []string
	)

	cmd := &cobra.Command{
		Use:   "process <episode-id>",
		Short: "Run the pipeline for one episode in the foreground",
		Long: "Run the full pipeline for one episode in this process. Steps whose " +
			"outputs already exist are skipped unless forced, so re-running a " +
			"partially processed episode only does the remaining work.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				episodeID := args[0]
				episode, err := st.GetByID(cmd.Context(), episodeID)
				if err != nil {
					return err
				}
				if episode == nil {
					return fmt.Errorf("episode %q not found", episodeID)
				}
				if episode.IsProcessing() {
					return fmt.Errorf("episode %q is held by a worker; stop the daemon first", episodeID)
				}

				arts := artifacts.NewStore(cfg, st, nil)
				steps := workflow.DefaultSteps(cfg, st, arts, nil)
				runner := pipeline.NewRunner(cfg, st, arts, nil)

				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Processing %s (%d steps)\n", episode.ID, len(steps))

				result := runner.RunEpisode(cmd.Context(), episode, steps, pipeline.RunOptions{
					Force:      force,
					ForceSteps: forceSteps,
				})

				for _, sr := range result.Steps {
					switch sr.Outcome {
					case pipeline.OutcomeSkipped:
						fmt.Fprintf(stdout, "  %-12s skipped (outputs already published)\n", sr.Step)
					case pipeline.OutcomeSucceeded:
						fmt.Fprintf(stdout, "  %-12s ok (%d attempt(s))\n", sr.Step, sr.Attempts)
					case pipeline.OutcomeFailed:
						fmt.Fprintf(stdout, "  %-12s FAILED\n", sr.Step)
					}
				}

				if result.Failed() {
					if err := st.UpdateStatus(context.WithoutCancel(cmd.Context()), episode.ID, store.StatusFailed, result.Err.Error()); err != nil {
						return err
					}
					return result.Err
				}
				if err := st.UpdateStatus(cmd.Context(), episode.ID, store.StatusCompleted, ""); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Episode %s completed\n", episode.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-run every step even when outputs exist")
	cmd.Flags().StringSliceVar(&forceSteps, "step", nil, "Re-run only the named step(s); others skip as usual")
	return cmd
}
