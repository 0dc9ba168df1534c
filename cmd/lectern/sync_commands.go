package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/progress"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and drain the remote progress outbox",
	}
	syncCmd.AddCommand(newSyncStatusCommand(ctx))
	syncCmd.AddCommand(newSyncPushCommand(ctx))
	return syncCmd
}

type syncStatus struct {
	Enabled bool                  `json:"enabled"`
	BaseURL string                `json:"baseUrl,omitempty"`
	Queued  int                   `json:"queued"`
	Next    []progress.QueueEntry `json:"next,omitempty"`
}

func newSyncStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync configuration and queued updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				store := s.svc.ProgressStore()
				queued, err := store.QueueLength(cmd.Context())
				if err != nil {
					return err
				}
				next, err := store.Pending(cmd.Context(), limit)
				if err != nil {
					return err
				}
				syncer := progress.NewSyncer(store, s.cfg.Sync, s.logger)
				status := syncStatus{Enabled: syncer.Enabled(), BaseURL: s.cfg.Sync.BaseURL, Queued: queued, Next: next}
				if jsonOutput {
					return writeJSON(cmd, status)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Sync enabled: %s\n", yesNo(status.Enabled))
				if status.BaseURL != "" {
					fmt.Fprintf(out, "Endpoint: %s\n", status.BaseURL)
				}
				fmt.Fprintf(out, "Queued updates: %d\n", status.Queued)
				if len(next) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(next))
				for _, entry := range next {
					rows = append(rows, []string{
						entry.Progress.CourseID,
						entry.Progress.LectureID,
						formatPercent(entry.Progress.ProgressPercent),
						fmt.Sprintf("%d", entry.Revision),
						formatAgo(entry.QueuedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Course", "Lecture", "Progress", "Revision", "Queued"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of queued updates to list")
	return cmd
}

func newSyncPushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Send queued progress to the remote endpoint now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				syncer := progress.NewSyncer(s.svc.ProgressStore(), s.cfg.Sync, s.logger)
				result, err := syncer.Push(cmd.Context())
				if errors.Is(err, progress.ErrSyncDisabled) {
					return errors.New("sync is disabled; set [sync] enabled and base_url in the config file")
				}
				if err != nil {
					return fmt.Errorf("push progress: %w", err)
				}
				out := cmd.OutOrStdout()
				if result.Batches == 0 {
					fmt.Fprintln(out, "Nothing to sync")
					return nil
				}
				fmt.Fprintf(out, "Sent %d updates in %d batches, %d acknowledged\n", result.Sent, result.Batches, result.Acked)
				if result.Last.Kind != progress.OutcomeAccepted {
					fmt.Fprintf(out, "Last batch %s (HTTP %d)", result.Last.Kind, result.Last.StatusCode)
					if result.Last.Message != "" {
						fmt.Fprintf(out, ": %s", result.Last.Message)
					}
					fmt.Fprintln(out)
					if result.Last.RetryAfter > 0 {
						fmt.Fprintf(out, "Retry after %s\n", result.Last.RetryAfter)
					}
				}
				return nil
			})
		},
	}
}
