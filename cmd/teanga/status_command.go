package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"teanga/internal/api"
	"teanga/internal/config"
	"teanga/internal/preflight"
	"teanga/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system, daemon, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("System Status", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, check := range preflight.RunAll(cmd.Context(), cfg) {
					kind := statusOK
					if !check.Passed {
						kind = statusError
					}
					fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Binaries", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, bin := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
					kind := statusOK
					detail := bin.Description
					if !bin.Available {
						kind = statusError
						if bin.Optional {
							kind = statusWarn
						}
						detail = bin.Detail
					}
					fmt.Fprintln(stdout, renderStatusLine(bin.Name, kind, detail, colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, daemonStatusLine(cfg, colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(stdout, line)
				}
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(store.AllStatuses()))
				for _, status := range store.AllStatuses() {
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", stats[status])})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

// daemonStatusLine probes the daemon's HTTP API. The daemon holds the
// authoritative running state; the CLI only observes.
func daemonStatusLine(cfg *config.Config, colorize bool) string {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return renderStatusLine("Daemon", statusInfo, "status API not configured", colorize)
	}

	req, err := http.NewRequest(http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return renderStatusLine("Daemon", statusError, err.Error(), colorize)
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return renderStatusLine("Daemon", statusWarn, "not running (start with `teangad`)", colorize)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return renderStatusLine("Daemon", statusError, fmt.Sprintf("status API returned %d", resp.StatusCode), colorize)
	}

	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return renderStatusLine("Daemon", statusError, fmt.Sprintf("decode status: %v", err), colorize)
	}
	detail := fmt.Sprintf("running (pid %d, workflow %s)", status.PID, runningWord(status.Workflow.Running))
	return renderStatusLine("Daemon", statusOK, detail, colorize)
}

func runningWord(running bool) string {
	if running {
		return "active"
	}
	return "idle"
}
