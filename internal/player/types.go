package player

import (
	"errors"
	"strings"

	"lectern/internal/progress"
	"lectern/internal/scanner"
)

// CourseIDPrefix prefixes folder names to form course identifiers.
const CourseIDPrefix = "local:"

var (
	// ErrNoCourse is returned when an operation needs an open folder.
	ErrNoCourse = errors.New("player: no course folder open")
	// ErrUnknownLecture is returned for a lecture that is not in the current scan.
	ErrUnknownLecture = errors.New("player: unknown lecture")
	// ErrNotCaption is returned when a non-caption file is requested as a subtitle.
	ErrNotCaption = errors.New("player: not a caption file")
)

// CourseID returns the course identifier for a folder name.
func CourseID(folderName string) string {
	return CourseIDPrefix + folderName
}

// FolderStatus tags the result of OpenFolder.
type FolderStatus string

const (
	FolderReady       FolderStatus = "ready"
	FolderCancelled   FolderStatus = "cancelled"
	FolderUnavailable FolderStatus = "unavailable"
)

// FolderState describes the outcome of opening a folder. Only a ready state
// carries course details.
type FolderState struct {
	Status     FolderStatus `json:"status"`
	CourseID   string       `json:"courseId,omitempty"`
	FolderName string       `json:"folderName,omitempty"`
	Path       string       `json:"path,omitempty"`
	Videos     int          `json:"videos"`
	WasCached  bool         `json:"wasCached"`
	CacheHit   bool         `json:"cacheHit"`
	Merged     int          `json:"merged"`
	Dropped    []string     `json:"dropped,omitempty"`
	Writable   bool         `json:"writable"`
}

// OpenRequest selects how OpenFolder obtains a folder. Path answers the
// picker directly; FolderName reopens a previously granted folder; ForceNew
// always opens the picker; otherwise the current folder is reused when it
// still verifies. AllowWrite grants save-progress access up front so later
// writes never prompt.
type OpenRequest struct {
	Path       string
	FolderName string
	ForceNew   bool
	AllowWrite bool
	OnProgress scanner.ProgressFunc
}

// Event is the playback moment a report describes.
type Event string

const (
	EventTick   Event = "tick"
	EventPause  Event = "pause"
	EventEnded  Event = "ended"
	EventUnload Event = "unload"
)

// ParseEvent maps a name to an Event, defaulting to tick.
func ParseEvent(name string) (Event, error) {
	switch Event(strings.ToLower(strings.TrimSpace(name))) {
	case "", EventTick:
		return EventTick, nil
	case EventPause:
		return EventPause, nil
	case EventEnded:
		return EventEnded, nil
	case EventUnload:
		return EventUnload, nil
	}
	return "", errors.New("player: unknown playback event " + name)
}

// forcesFileWrite reports whether the event bypasses the file throttle.
func (e Event) forcesFileWrite() bool {
	return e != EventTick
}

// Report is one playback progress update.
type Report struct {
	LectureID       string  `json:"lectureId"`
	CurrentSeconds  float64 `json:"currentTimeSeconds"`
	DurationSeconds float64 `json:"totalDurationSeconds"`
	Event           Event   `json:"event"`
}

// Course is the currently open folder.
type Course struct {
	ID         string              `json:"courseId"`
	FolderName string              `json:"folderName"`
	Path       string              `json:"path"`
	Videos     []scanner.VideoFile `json:"videos"`
}

// ResumeTarget is the lecture to continue with.
type ResumeTarget struct {
	Video    scanner.VideoFile       `json:"video"`
	Progress *progress.VideoProgress `json:"progress,omitempty"`
	Reason   string                  `json:"reason"`
}
