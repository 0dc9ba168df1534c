package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"lectern/internal/access"
	"lectern/internal/store"
)

type localStatus struct {
	DataDir  string            `json:"dataDir"`
	Database store.Health      `json:"database"`
	Current  *access.Reference `json:"current,omitempty"`
	Folders  int               `json:"folders"`
	Queued   int               `json:"queued"`
	Sync     bool              `json:"syncEnabled"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local database and folder state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				c := cmd.Context()
				health, err := s.db.CheckHealth(c)
				if err != nil {
					return fmt.Errorf("database health: %w", err)
				}
				current, err := s.svc.Refs().Current(c)
				if err != nil {
					return err
				}
				refs, err := s.svc.Refs().List(c)
				if err != nil {
					return err
				}
				queued, err := s.svc.ProgressStore().QueueLength(c)
				if err != nil {
					return err
				}
				status := localStatus{
					DataDir:  s.cfg.Paths.DataDir,
					Database: health,
					Current:  current,
					Folders:  len(refs),
					Queued:   queued,
					Sync:     s.cfg.Sync.Enabled,
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Data dir: %s\n", status.DataDir)
				fmt.Fprintf(out, "Database: %s (%s, schema v%d)\n", health.Path, formatSize(health.SizeBytes), health.SchemaVersion)
				if status.Current != nil {
					fmt.Fprintf(out, "Current folder: %s\n", status.Current.FolderName)
				} else {
					fmt.Fprintln(out, "Current folder: none")
				}
				fmt.Fprintf(out, "Granted folders: %d\n", status.Folders)
				fmt.Fprintf(out, "Queued sync updates: %d (sync enabled: %s)\n", status.Queued, yesNo(status.Sync))

				tables := make([]string, 0, len(health.Rows))
				for name := range health.Rows {
					tables = append(tables, name)
				}
				slices.Sort(tables)
				rows := make([][]string, 0, len(tables))
				for _, name := range tables {
					rows = append(rows, []string{name, fmt.Sprintf("%d", health.Rows[name])})
				}
				fmt.Fprint(out, renderTable([]string{"Table", "Rows"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
