package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/access"
	"lectern/internal/player"
	"lectern/internal/scanner"
)

func newFolderCommand(ctx *commandContext) *cobra.Command {
	folderCmd := &cobra.Command{
		Use:   "folder",
		Short: "Open and manage granted course folders",
	}

	folderCmd.AddCommand(newFolderOpenCommand(ctx))
	folderCmd.AddCommand(newFolderChooseCommand(ctx))
	folderCmd.AddCommand(newFolderListCommand(ctx))
	folderCmd.AddCommand(newFolderForgetCommand(ctx))
	folderCmd.AddCommand(newFolderCurrentCommand(ctx))

	return folderCmd
}

func newFolderOpenCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "open [path]",
		Short: "Open a course folder, or reopen the current one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := player.OpenRequest{}
			if len(args) == 1 {
				req.Path = args[0]
			}
			return runOpenFolder(cmd, ctx, req, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newFolderChooseCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "choose [name]",
		Short: "Pick a new folder, or switch to a previously granted one by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := player.OpenRequest{ForceNew: true}
			if len(args) == 1 {
				req = player.OpenRequest{FolderName: args[0]}
			}
			return runOpenFolder(cmd, ctx, req, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runOpenFolder(cmd *cobra.Command, ctx *commandContext, req player.OpenRequest, jsonOutput bool) error {
	return ctx.withSession(func(s *session) error {
		if !jsonOutput {
			req.OnProgress = scanProgressPrinter(cmd)
		}
		state, err := s.svc.OpenFolder(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd, state)
		}
		out := cmd.OutOrStdout()
		switch state.Status {
		case player.FolderCancelled:
			fmt.Fprintln(out, "No folder selected")
			return nil
		case player.FolderUnavailable:
			if state.FolderName != "" {
				return fmt.Errorf("folder %q is unavailable", state.FolderName)
			}
			return errors.New("folder is unavailable")
		}
		fmt.Fprintf(out, "Opened %s (%d lectures)\n", state.FolderName, state.Videos)
		fmt.Fprintf(out, "Course ID: %s\n", state.CourseID)
		fmt.Fprintf(out, "Path: %s\n", state.Path)
		fmt.Fprintf(out, "Reused grant: %s\n", yesNo(state.WasCached))
		fmt.Fprintf(out, "Cache hit: %s\n", yesNo(state.CacheHit))
		if state.Merged > 0 {
			fmt.Fprintf(out, "Restored %d progress rows from the folder\n", state.Merged)
		}
		if len(state.Dropped) > 0 {
			fmt.Fprintf(out, "Forgot unavailable folders: %s\n", strings.Join(state.Dropped, ", "))
		}
		return nil
	})
}

// scanProgressPrinter reports long scans on stderr every 100 files.
func scanProgressPrinter(cmd *cobra.Command) scanner.ProgressFunc {
	return func(p scanner.Progress) {
		if p.Count%100 == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Scanning... %d lectures found\n", p.Count)
		}
	}
}

func newFolderListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List previously granted folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				refs, err := s.svc.Refs().List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					if refs == nil {
						refs = []access.Reference{}
					}
					return writeJSON(cmd, refs)
				}
				if len(refs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No folders granted")
					return nil
				}
				current, err := s.svc.Refs().Current(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(refs))
				for _, ref := range refs {
					marker := ""
					if current != nil && current.FolderName == ref.FolderName {
						marker = "*"
					}
					rows = append(rows, []string{marker, ref.FolderName, ref.Path, grantLabel(ref), formatTime(ref.SavedAt)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"", "Folder", "Path", "Access", "Saved"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func grantLabel(ref access.Reference) string {
	switch {
	case ref.HasGrant(access.ModeReadWrite):
		return "read/write"
	case ref.HasGrant(access.ModeRead):
		return "read"
	default:
		return "prompt"
	}
}

func newFolderForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <name>",
		Short: "Remove a granted folder from the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				removed, err := s.svc.Refs().Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("folder %q is not in the list", args[0])
				}
				if _, err := s.svc.Cache().Clear(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
				return nil
			})
		},
	}
}

func newFolderCurrentCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current course folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				current, err := s.svc.Refs().Current(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, current)
				}
				out := cmd.OutOrStdout()
				if current == nil {
					fmt.Fprintln(out, "No current folder")
					return nil
				}
				fmt.Fprintf(out, "Folder: %s\n", current.FolderName)
				fmt.Fprintf(out, "Course ID: %s\n", player.CourseID(current.FolderName))
				fmt.Fprintf(out, "Path: %s\n", current.Path)
				fmt.Fprintf(out, "Access: %s\n", grantLabel(*current))
				fmt.Fprintf(out, "Available: %s\n", yesNo(folderAvailable(current.Path)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func folderAvailable(path string) bool {
	handle, err := access.OpenHandle(path)
	if err != nil {
		return false
	}
	_ = handle.Close()
	return true
}
