package progressfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"lectern/internal/access"
	"lectern/internal/logging"
	"lectern/internal/progress"
)

const (
	// FormatVersion is the only document version this package reads or writes.
	FormatVersion = "1.0"
	// DefaultName is the sidecar filename at the course folder root.
	DefaultName = ".lectern-progress.json"

	maxDocumentBytes = 16 << 20
)

// Document is the on-disk sidecar layout.
type Document struct {
	Version   string `json:"version"`
	CourseID  string `json:"courseId"`
	UpdatedAt int64  `json:"updatedAt"`
	Progress  []Row  `json:"progress"`
}

// Row is one lecture's progress inside a Document. The course id lives on the
// document, not the row.
type Row struct {
	LectureID            string  `json:"lectureId"`
	ProgressPercent      float64 `json:"progressPercent"`
	CurrentTimeSeconds   int     `json:"currentTimeSeconds"`
	TotalDurationSeconds int     `json:"totalDurationSeconds"`
	Completed            bool    `json:"completed"`
	LastWatchedAt        int64   `json:"lastWatchedAt"`
}

// WriteGate grants write access to a folder. *access.Broker satisfies it.
type WriteGate interface {
	EnsureWrite(ctx context.Context, handle *access.Handle) bool
}

// File reads and writes the sidecar for granted folders.
type File struct {
	gate   WriteGate
	name   string
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a File. An empty name uses DefaultName.
func New(gate WriteGate, name string, logger *slog.Logger) *File {
	if name == "" {
		name = DefaultName
	}
	return &File{
		gate:   gate,
		name:   name,
		logger: logging.NewComponentLogger(logger, "progressfile"),
		now:    time.Now,
	}
}

// Name returns the sidecar filename.
func (f *File) Name() string { return f.name }

// Write replaces the sidecar with rows for courseID. It returns false without
// an error when write access is unavailable.
func (f *File) Write(ctx context.Context, handle *access.Handle, courseID string, rows []progress.VideoProgress) (bool, error) {
	if handle == nil || f.gate == nil || !f.gate.EnsureWrite(ctx, handle) {
		f.logger.Debug("progress file skipped without write access", logging.Course(courseID))
		return false, nil
	}

	doc := Document{
		Version:   FormatVersion,
		CourseID:  courseID,
		UpdatedAt: f.now().UnixMilli(),
		Progress:  make([]Row, 0, len(rows)),
	}
	for _, p := range rows {
		if p.CourseID != "" && p.CourseID != courseID {
			continue
		}
		doc.Progress = append(doc.Progress, Row{
			LectureID:            p.LectureID,
			ProgressPercent:      p.ProgressPercent,
			CurrentTimeSeconds:   p.CurrentTimeSeconds,
			TotalDurationSeconds: p.TotalDurationSeconds,
			Completed:            p.Completed,
			LastWatchedAt:        p.LastWatchedAt,
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode progress file: %w", err)
	}
	if err := writeFile(handle.Root(), f.name, data); err != nil {
		return false, fmt.Errorf("write progress file: %w", err)
	}
	f.logger.Debug("progress file written",
		logging.Course(courseID),
		logging.Int("rows", len(doc.Progress)),
	)
	return true, nil
}

func writeFile(root *os.Root, name string, data []byte) (err error) {
	file, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()
	_, err = file.Write(data)
	return err
}

// Read returns the rows stored for courseID, or nil when the sidecar is
// missing, unreadable, malformed, or belongs to another version or course.
func (f *File) Read(ctx context.Context, handle *access.Handle, courseID string) []progress.VideoProgress {
	if handle == nil || ctx.Err() != nil {
		return nil
	}
	doc, err := f.load(handle)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(f.logger, "progress file ignored", "progress_file_invalid",
				logging.Course(courseID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "local database is the only source of progress"),
			)
		}
		return nil
	}
	if doc.Version != FormatVersion || doc.CourseID != courseID {
		logging.WarnWithContext(f.logger, "progress file does not match course", "progress_file_mismatch",
			logging.Course(courseID),
			logging.String("file_course_id", doc.CourseID),
			logging.String("file_version", doc.Version),
			logging.String(logging.FieldImpact, "stale document left untouched and not merged"),
		)
		return nil
	}

	out := make([]progress.VideoProgress, 0, len(doc.Progress))
	for _, row := range doc.Progress {
		if row.LectureID == "" {
			continue
		}
		out = append(out, progress.VideoProgress{
			CourseID:             courseID,
			LectureID:            row.LectureID,
			ProgressPercent:      row.ProgressPercent,
			CurrentTimeSeconds:   row.CurrentTimeSeconds,
			TotalDurationSeconds: row.TotalDurationSeconds,
			Completed:            row.Completed,
			LastWatchedAt:        row.LastWatchedAt,
		})
	}
	return out
}

func (f *File) load(handle *access.Handle) (*Document, error) {
	file, err := handle.Root().Open(f.name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes))
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode progress file: %w", err)
	}
	return &doc, nil
}
