package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lectern/internal/logging"
	"lectern/internal/store"
)

const progressColumns = "course_id, lecture_id, progress_percent, current_time_seconds, total_duration_seconds, completed, last_watched_at"

// Store persists progress rows and their sync outbox.
type Store struct {
	db        *store.Store
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore constructs a progress store. A non-positive threshold uses the default.
func NewStore(db *store.Store, threshold float64, logger *slog.Logger) *Store {
	if threshold <= 0 {
		threshold = DefaultCompletionThreshold
	}
	return &Store{
		db:        db,
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "progress"),
		now:       time.Now,
	}
}

// Save upserts p and its outbox entry in one transaction and returns the row
// as stored.
func (s *Store) Save(ctx context.Context, p VideoProgress) (VideoProgress, error) {
	if err := p.validate(); err != nil {
		return VideoProgress{}, err
	}
	p = p.normalized(s.threshold)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := p
		nowMs := s.now().UnixMilli()
		row.LastWatchedAt = max(row.LastWatchedAt, nowMs)
		stored, found, err := lastWatched(ctx, tx, row.CourseID, row.LectureID)
		if err != nil {
			return err
		}
		if found {
			row.LastWatchedAt = max(row.LastWatchedAt, stored)
		}
		if err := upsertProgress(ctx, tx, row); err != nil {
			return err
		}
		if err := enqueue(ctx, tx, row, nowMs); err != nil {
			return err
		}
		p = row
		return nil
	})
	if err != nil {
		return VideoProgress{}, err
	}
	return p, nil
}

// Merge upserts rows read from a portable progress file. Rows keep their own
// lastWatchedAt; a row whose stored copy is at least as recent is left
// untouched, so merging the same document twice changes nothing. It returns
// the number of rows written.
func (s *Store) Merge(ctx context.Context, rows []VideoProgress) (int, error) {
	written := 0
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		written = 0
		nowMs := s.now().UnixMilli()
		for _, row := range rows {
			if row.validate() != nil {
				continue
			}
			row = row.normalized(s.threshold)
			stored, found, err := lastWatched(ctx, tx, row.CourseID, row.LectureID)
			if err != nil {
				return err
			}
			if found && stored >= row.LastWatchedAt {
				continue
			}
			if err := upsertProgress(ctx, tx, row); err != nil {
				return err
			}
			if err := enqueue(ctx, tx, row, nowMs); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if written > 0 {
		s.logger.Debug("merged portable progress", logging.Int("rows", written))
	}
	return written, nil
}

// Get returns the row for (courseID, lectureID), or nil when none exists.
func (s *Store) Get(ctx context.Context, courseID, lectureID string) (*VideoProgress, error) {
	var (
		p         VideoProgress
		completed int
	)
	err := s.db.QueryRow(ctx,
		"SELECT "+progressColumns+" FROM video_progress WHERE course_id = ? AND lecture_id = ?",
		[]any{courseID, lectureID},
		&p.CourseID, &p.LectureID, &p.ProgressPercent, &p.CurrentTimeSeconds, &p.TotalDurationSeconds, &completed, &p.LastWatchedAt,
	)
	if store.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	p.Completed = completed != 0
	return &p, nil
}

// ListForCourse returns every row for courseID, most recently watched first.
func (s *Store) ListForCourse(ctx context.Context, courseID string) ([]VideoProgress, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+progressColumns+" FROM video_progress WHERE course_id = ? ORDER BY last_watched_at DESC, lecture_id",
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []VideoProgress
	for rows.Next() {
		var (
			p         VideoProgress
			completed int
		)
		if err := rows.Scan(&p.CourseID, &p.LectureID, &p.ProgressPercent, &p.CurrentTimeSeconds, &p.TotalDurationSeconds, &completed, &p.LastWatchedAt); err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		p.Completed = completed != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// Courses summarises progress per course, most recently watched first.
func (s *Store) Courses(ctx context.Context) ([]CourseSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT course_id, COUNT(1), SUM(completed), MAX(last_watched_at)
         FROM video_progress GROUP BY course_id ORDER BY MAX(last_watched_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("summarise progress: %w", err)
	}
	defer rows.Close()

	var out []CourseSummary
	for rows.Next() {
		var c CourseSummary
		if err := rows.Scan(&c.CourseID, &c.Lectures, &c.Completed, &c.LastWatchedAt); err != nil {
			return nil, fmt.Errorf("scan course summary: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes one row and its pending outbox entry. Deletion is always an
// explicit user action.
func (s *Store) Delete(ctx context.Context, courseID, lectureID string) (bool, error) {
	var affected int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM video_progress WHERE course_id = ? AND lecture_id = ?", courseID, lectureID)
		if err != nil {
			return fmt.Errorf("delete progress: %w", err)
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE course_id = ? AND lecture_id = ?", courseID, lectureID)
		return err
	})
	return affected > 0, err
}

// DeleteCourse removes every row for courseID and returns the number removed.
func (s *Store) DeleteCourse(ctx context.Context, courseID string) (int64, error) {
	var affected int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM video_progress WHERE course_id = ?", courseID)
		if err != nil {
			return fmt.Errorf("delete course progress: %w", err)
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE course_id = ?", courseID)
		return err
	})
	return affected, err
}

func lastWatched(ctx context.Context, tx *sql.Tx, courseID, lectureID string) (int64, bool, error) {
	var stored int64
	err := tx.QueryRowContext(ctx,
		"SELECT last_watched_at FROM video_progress WHERE course_id = ? AND lecture_id = ?",
		courseID, lectureID,
	).Scan(&stored)
	if store.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read stored progress: %w", err)
	}
	return stored, true, nil
}

func upsertProgress(ctx context.Context, tx *sql.Tx, p VideoProgress) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO video_progress (`+progressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(course_id, lecture_id) DO UPDATE SET
            progress_percent = excluded.progress_percent,
            current_time_seconds = excluded.current_time_seconds,
            total_duration_seconds = excluded.total_duration_seconds,
            completed = excluded.completed,
            last_watched_at = excluded.last_watched_at`,
		p.CourseID, p.LectureID, p.ProgressPercent, p.CurrentTimeSeconds, p.TotalDurationSeconds,
		store.BoolToInt(p.Completed), p.LastWatchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func enqueue(ctx context.Context, tx *sql.Tx, p VideoProgress, queuedAt int64) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode sync payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_queue (course_id, lecture_id, payload_json, queued_at, revision)
         VALUES (?, ?, ?, ?, 1)
         ON CONFLICT(course_id, lecture_id) DO UPDATE SET
            payload_json = excluded.payload_json,
            queued_at = excluded.queued_at,
            revision = sync_queue.revision + 1`,
		p.CourseID, p.LectureID, string(payload), queuedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue sync entry: %w", err)
	}
	return nil
}
