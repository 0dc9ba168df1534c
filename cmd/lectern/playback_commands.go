package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/subtitles"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var folderName string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Show which lecture to continue with",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				if _, err := s.openCourse(cmd.Context(), folderName); err != nil {
					return err
				}
				target, err := s.svc.Resume(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, target)
				}
				out := cmd.OutOrStdout()
				if target == nil {
					fmt.Fprintln(out, "Course has no lectures")
					return nil
				}
				fmt.Fprintf(out, "Lecture: %s\n", target.Video.DisplayName)
				fmt.Fprintf(out, "Path: %s\n", target.Video.RelativePath)
				if p := target.Progress; p != nil {
					fmt.Fprintf(out, "Position: %s / %s (%s)\n",
						formatClock(p.CurrentTimeSeconds),
						formatClock(p.TotalDurationSeconds),
						formatPercent(p.ProgressPercent),
					)
				} else {
					fmt.Fprintln(out, "Position: start")
				}
				fmt.Fprintf(out, "Reason: %s\n", target.Reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folderName, "folder", "", "Granted folder to open instead of the current one")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSubtitlesCommand(ctx *commandContext) *cobra.Command {
	var folderName string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "subtitles <lecture>",
		Short: "List caption tracks for a lecture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				if _, err := s.openCourse(cmd.Context(), folderName); err != nil {
					return err
				}
				tracks, err := s.svc.SubtitleTracks(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					if tracks == nil {
						tracks = []subtitles.Track{}
					}
					return writeJSON(cmd, tracks)
				}
				out := cmd.OutOrStdout()
				if len(tracks) == 0 {
					fmt.Fprintf(out, "No caption tracks for %s\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(tracks))
				for _, t := range tracks {
					def := ""
					if t.Default {
						def = "yes"
					}
					rows = append(rows, []string{t.Language, t.Label, t.Format, def, t.Path})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Language", "Label", "Format", "Default", "Path"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folderName, "folder", "", "Granted folder to open instead of the current one")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
