package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"lectern/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "List the lectures in a folder without opening it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.fileLogger(cfg)
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve folder path: %w", err)
			}
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("stat folder: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a folder", root)
			}

			s := scanner.FromConfig(cfg, logger)
			var progress scanner.ProgressFunc
			if !jsonOutput {
				progress = scanProgressPrinter(cmd)
			}
			videos, err := s.Scan(cmd.Context(), os.DirFS(root), progress)
			if err != nil {
				return err
			}
			if jsonOutput {
				if videos == nil {
					videos = []scanner.VideoFile{}
				}
				return writeJSON(cmd, videos)
			}
			out := cmd.OutOrStdout()
			if len(videos) == 0 {
				fmt.Fprintln(out, "No lectures found")
				return nil
			}
			rows := make([][]string, 0, len(videos))
			for i, v := range videos {
				rows = append(rows, []string{strconv.Itoa(i + 1), v.DisplayName, v.RelativePath, formatSize(v.Size)})
			}
			fmt.Fprint(out, renderTable(
				[]string{"#", "Lecture", "Path", "Size"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "\n%d lectures\n", len(videos))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
