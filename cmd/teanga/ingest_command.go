package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"teanga/internal/config"
	"teanga/internal/services/rss"
	"teanga/internal/store"
	"teanga/internal/workflow"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Discover episodes from feeds or add them manually",
	}

	ingestCmd.AddCommand(newIngestScanCommand(ctx))
	ingestCmd.AddCommand(newIngestAddCommand(ctx))

	return ingestCmd
}

func newIngestScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan all configured feeds once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if len(cfg.Feeds) == 0 {
					return errors.New("no feeds configured; add [[feeds]] blocks to the config file")
				}
				discoverer := workflow.NewDiscoverer(cfg, rss.NewFetcher(cfg, nil), st, nil, nil)
				created, err := discoverer.ScanOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d feed(s), enqueued %d new episode(s)\n", len(cfg.Feeds), created)
				return nil
			})
		},
	}
}

func newIngestAddCommand(ctx *commandContext) *cobra.Command {
	var (
		source       string
		show         string
		title        string
		enclosureURL string
		publishedRaw string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enqueue one episode directly from an enclosure URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(enclosureURL) == "" {
				return errors.New("--url is required")
			}
			if strings.TrimSpace(source) == "" || strings.TrimSpace(show) == "" {
				return errors.New("--source and --show are required")
			}

			publishedAt := time.Now().UTC()
			if trimmed := strings.TrimSpace(publishedRaw); trimmed != "" {
				parsed, err := time.Parse(time.RFC3339, trimmed)
				if err != nil {
					return fmt.Errorf("parse --published (want RFC3339): %w", err)
				}
				publishedAt = parsed
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				discoverer := workflow.NewDiscoverer(cfg, rss.NewFetcher(cfg, nil), st, nil, nil)
				episode, err := discoverer.AddManual(cmd.Context(), source, show, title, enclosureURL, publishedAt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s (%s)\n", episode.ID, episode.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source key, e.g. rnag")
	cmd.Flags().StringVar(&show, "show", "", "Show key, e.g. barrscealta")
	cmd.Flags().StringVar(&title, "title", "", "Episode title")
	cmd.Flags().StringVar(&enclosureURL, "url", "", "Direct audio enclosure URL")
	cmd.Flags().StringVar(&publishedRaw, "published", "", "Publication time (RFC3339, defaults to now)")
	return cmd
}
