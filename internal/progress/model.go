package progress

import (
	"errors"
	"math"
	"strings"
)

// DefaultCompletionThreshold is the percent at which a lecture counts as completed.
const DefaultCompletionThreshold = 95.0

// ErrInvalidKey reports a progress row without a course or lecture identifier.
var ErrInvalidKey = errors.New("progress: course and lecture ids are required")

// VideoProgress is the watch state of one lecture. LectureID is the video's
// relative path within the course folder. LastWatchedAt is in epoch milliseconds.
type VideoProgress struct {
	CourseID             string  `json:"courseId"`
	LectureID            string  `json:"lectureId"`
	ProgressPercent      float64 `json:"progressPercent"`
	CurrentTimeSeconds   int     `json:"currentTimeSeconds"`
	TotalDurationSeconds int     `json:"totalDurationSeconds"`
	Completed            bool    `json:"completed"`
	LastWatchedAt        int64   `json:"lastWatchedAt"`
}

func (p VideoProgress) validate() error {
	if strings.TrimSpace(p.CourseID) == "" || strings.TrimSpace(p.LectureID) == "" {
		return ErrInvalidKey
	}
	return nil
}

// normalized clamps numeric fields and derives Completed from the percent.
func (p VideoProgress) normalized(threshold float64) VideoProgress {
	if math.IsNaN(p.ProgressPercent) || p.ProgressPercent < 0 {
		p.ProgressPercent = 0
	}
	if p.ProgressPercent > 100 {
		p.ProgressPercent = 100
	}
	if p.CurrentTimeSeconds < 0 {
		p.CurrentTimeSeconds = 0
	}
	if p.TotalDurationSeconds < 0 {
		p.TotalDurationSeconds = 0
	}
	p.Completed = p.ProgressPercent >= threshold
	return p
}

// Percent computes a progress percentage from playback position.
func Percent(currentSeconds, durationSeconds float64) float64 {
	if durationSeconds <= 0 || currentSeconds <= 0 {
		return 0
	}
	pct := currentSeconds / durationSeconds * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// CourseSummary aggregates progress rows for one course.
type CourseSummary struct {
	CourseID      string `json:"courseId"`
	Lectures      int    `json:"lectures"`
	Completed     int    `json:"completed"`
	LastWatchedAt int64  `json:"lastWatchedAt"`
}
