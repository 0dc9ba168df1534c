package player

import (
	"lectern/internal/progress"
	"lectern/internal/scanner"
)

// pickResume chooses the lecture to continue with: the most recently watched
// one if unfinished, else the next unfinished lecture after it in course
// order, else the first unfinished lecture, else the first lecture.
func pickResume(videos []scanner.VideoFile, rows []progress.VideoProgress) *ResumeTarget {
	if len(videos) == 0 {
		return nil
	}
	byLecture := make(map[string]*progress.VideoProgress, len(rows))
	var last *progress.VideoProgress
	for i := range rows {
		row := &rows[i]
		byLecture[row.LectureID] = row
		if last == nil || row.LastWatchedAt > last.LastWatchedAt {
			last = row
		}
	}
	done := func(v scanner.VideoFile) bool {
		p, ok := byLecture[v.RelativePath]
		return ok && p.Completed
	}
	target := func(i int, reason string) *ResumeTarget {
		return &ResumeTarget{Video: videos[i], Progress: byLecture[videos[i].RelativePath], Reason: reason}
	}

	lastIdx := -1
	if last != nil {
		for i, v := range videos {
			if v.RelativePath == last.LectureID {
				lastIdx = i
				break
			}
		}
	}
	if lastIdx >= 0 {
		if !last.Completed {
			return target(lastIdx, "last watched")
		}
		for i := lastIdx + 1; i < len(videos); i++ {
			if !done(videos[i]) {
				return target(i, "next after last watched")
			}
		}
	}
	for i, v := range videos {
		if !done(v) {
			return target(i, "first unfinished")
		}
	}
	return target(0, "course complete")
}
