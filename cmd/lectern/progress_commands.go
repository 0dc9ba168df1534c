package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"lectern/internal/player"
	"lectern/internal/progress"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect and edit watch progress",
	}

	progressCmd.AddCommand(newProgressShowCommand(ctx))
	progressCmd.AddCommand(newProgressReportCommand(ctx))
	progressCmd.AddCommand(newProgressResetCommand(ctx))

	return progressCmd
}

// lectureRow pairs a lecture with its stored progress for display.
type lectureRow struct {
	Lecture  string                  `json:"lecture"`
	Path     string                  `json:"path"`
	Progress *progress.VideoProgress `json:"progress,omitempty"`
}

func newProgressShowCommand(ctx *commandContext) *cobra.Command {
	var folderName string
	var all bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show progress for the current course, or a summary of every course",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				if all {
					return showCourseSummaries(cmd, s, jsonOutput)
				}
				if _, err := s.openCourse(cmd.Context(), folderName); err != nil {
					return err
				}
				videos, err := s.svc.Videos(cmd.Context())
				if err != nil {
					return err
				}
				stored, err := s.svc.CourseProgress(cmd.Context())
				if err != nil {
					return err
				}
				byLecture := make(map[string]progress.VideoProgress, len(stored))
				for _, p := range stored {
					byLecture[p.LectureID] = p
				}

				view := make([]lectureRow, 0, len(videos))
				for _, v := range videos {
					row := lectureRow{Lecture: v.DisplayName, Path: v.RelativePath}
					if p, ok := byLecture[v.RelativePath]; ok {
						row.Progress = &p
					}
					view = append(view, row)
				}
				if jsonOutput {
					return writeJSON(cmd, view)
				}

				rows := make([][]string, 0, len(view))
				completed := 0
				for i, r := range view {
					pct, pos, done, watched := "-", "-", "", "-"
					if p := r.Progress; p != nil {
						pct = formatPercent(p.ProgressPercent)
						pos = formatClock(p.CurrentTimeSeconds) + " / " + formatClock(p.TotalDurationSeconds)
						watched = formatAgo(p.LastWatchedAt)
						if p.Completed {
							done = "yes"
							completed++
						}
					}
					rows = append(rows, []string{strconv.Itoa(i + 1), r.Lecture, pct, pos, done, watched})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(
					[]string{"#", "Lecture", "Progress", "Position", "Done", "Last watched"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintf(out, "\n%d of %d lectures completed\n", completed, len(view))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folderName, "folder", "", "Granted folder to open instead of the current one")
	cmd.Flags().BoolVar(&all, "all", false, "Summarise every course with stored progress")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func showCourseSummaries(cmd *cobra.Command, s *session, jsonOutput bool) error {
	courses, err := s.svc.ProgressStore().Courses(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		if courses == nil {
			courses = []progress.CourseSummary{}
		}
		return writeJSON(cmd, courses)
	}
	out := cmd.OutOrStdout()
	if len(courses) == 0 {
		fmt.Fprintln(out, "No progress recorded")
		return nil
	}
	rows := make([][]string, 0, len(courses))
	for _, c := range courses {
		rows = append(rows, []string{
			c.CourseID,
			strconv.Itoa(c.Lectures),
			strconv.Itoa(c.Completed),
			formatMillis(c.LastWatchedAt),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Course", "Lectures", "Completed", "Last watched"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintln(out)
	return nil
}

func newProgressReportCommand(ctx *commandContext) *cobra.Command {
	var (
		folderName string
		at         float64
		duration   float64
		event      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "report <lecture>",
		Short: "Record a playback position for a lecture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := player.ParseEvent(event)
			if err != nil {
				return err
			}
			if duration <= 0 {
				return errors.New("--duration must be positive")
			}
			return ctx.withSession(func(s *session) error {
				if _, err := s.openCourse(cmd.Context(), folderName); err != nil {
					return err
				}
				saved, err := s.svc.Report(cmd.Context(), player.Report{
					LectureID:       args[0],
					CurrentSeconds:  at,
					DurationSeconds: duration,
					Event:           ev,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, saved)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s at %s (completed: %s)\n",
					saved.LectureID,
					formatPercent(saved.ProgressPercent),
					formatClock(saved.CurrentTimeSeconds),
					yesNo(saved.Completed),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folderName, "folder", "", "Granted folder to open instead of the current one")
	cmd.Flags().Float64Var(&at, "at", 0, "Playback position in seconds")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Lecture duration in seconds")
	cmd.Flags().StringVar(&event, "event", "pause", "Playback event: tick, pause, ended, unload")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newProgressResetCommand(ctx *commandContext) *cobra.Command {
	var folderName string

	cmd := &cobra.Command{
		Use:   "reset [lecture]",
		Short: "Clear progress for one lecture, or the whole course",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lecture := ""
			if len(args) == 1 {
				lecture = args[0]
			}
			return ctx.withSession(func(s *session) error {
				state, err := s.openCourse(cmd.Context(), folderName)
				if err != nil {
					return err
				}
				removed, err := s.svc.ResetProgress(cmd.Context(), lecture)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if lecture != "" {
					if removed == 0 {
						fmt.Fprintf(out, "No progress stored for %s\n", lecture)
						return nil
					}
					fmt.Fprintf(out, "Cleared progress for %s\n", lecture)
					return nil
				}
				fmt.Fprintf(out, "Cleared %d progress rows for %s\n", removed, state.CourseID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folderName, "folder", "", "Granted folder to open instead of the current one")
	return cmd
}
