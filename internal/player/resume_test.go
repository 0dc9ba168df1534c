package player

import (
	"testing"

	"lectern/internal/progress"
	"lectern/internal/scanner"
)

func TestPickResume(t *testing.T) {
	videos := []scanner.VideoFile{
		{RelativePath: "01.mp4"},
		{RelativePath: "02.mp4"},
		{RelativePath: "03.mp4"},
	}
	row := func(lecture string, completed bool, at int64) progress.VideoProgress {
		return progress.VideoProgress{LectureID: lecture, Completed: completed, LastWatchedAt: at}
	}

	tests := []struct {
		name string
		rows []progress.VideoProgress
		want string
	}{
		{"nothing watched", nil, "01.mp4"},
		{"last watched unfinished", []progress.VideoProgress{row("01.mp4", true, 1), row("02.mp4", false, 2)}, "02.mp4"},
		{"next unfinished after last", []progress.VideoProgress{row("01.mp4", true, 2), row("02.mp4", true, 1)}, "03.mp4"},
		{"wraps to first unfinished", []progress.VideoProgress{row("02.mp4", false, 1), row("03.mp4", true, 5)}, "01.mp4"},
		{"all complete", []progress.VideoProgress{row("01.mp4", true, 1), row("02.mp4", true, 2), row("03.mp4", true, 3)}, "01.mp4"},
		{"last watched no longer in folder", []progress.VideoProgress{row("gone.mp4", false, 9), row("01.mp4", true, 1)}, "02.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickResume(videos, tt.rows)
			if got == nil || got.Video.RelativePath != tt.want {
				t.Fatalf("pickResume = %+v, want %s", got, tt.want)
			}
		})
	}

	if pickResume(nil, nil) != nil {
		t.Fatal("expected nil for an empty course")
	}
}
