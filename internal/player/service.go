package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"lectern/internal/access"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/metacache"
	"lectern/internal/progress"
	"lectern/internal/progressfile"
	"lectern/internal/scanner"
	"lectern/internal/store"
	"lectern/internal/subtitles"
	"lectern/internal/watch"
)

const maxCaptionBytes = 8 << 20

// Service owns the open course and every store behind it.
type Service struct {
	logger    *slog.Logger
	refs      *access.Store
	broker    *access.Broker
	scanner   *scanner.Scanner
	cache     *metacache.Cache
	progress  *progress.Store
	file      *progressfile.File
	throttle  *progressfile.Throttle
	subtitles *subtitles.Resolver

	checker      access.OSChecker
	watchEnabled bool

	mu      sync.Mutex
	course  *openCourse
	watcher *watch.Watcher
	stale   atomic.Bool
}

type openCourse struct {
	id     string
	handle *access.Handle
	videos []scanner.VideoFile
	byPath map[string]int
	// dirty marks progress saved since the last portable file write.
	dirty bool
}

// Option customizes a Service.
type Option func(*Service)

// WithChecker overrides the OS permission check used by the broker.
func WithChecker(check access.OSChecker) Option {
	return func(s *Service) { s.checker = check }
}

// WithoutWatcher disables the folder watcher.
func WithoutWatcher() Option {
	return func(s *Service) { s.watchEnabled = false }
}

// New wires a service from configuration, the local database, and a picker.
func New(cfg *config.Config, db *store.Store, prompter access.Prompter, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		logger:       logging.NewComponentLogger(logger, "player"),
		refs:         access.NewStore(db),
		scanner:      scanner.FromConfig(cfg, logger),
		cache:        metacache.New(db, logger),
		progress:     progress.NewStore(db, cfg.Progress.CompletionThreshold, logger),
		throttle:     progressfile.NewThrottle(cfg.FileThrottle()),
		subtitles:    subtitles.NewResolver(cfg.Subtitles.DefaultLanguage, logger).WithVideoExtensions(cfg.Scanner.VideoExtensions),
		watchEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	picker := access.ContextPrompter{Next: prompter}
	perms := access.NewPermissions(s.refs, picker, logger)
	if s.checker != nil {
		perms = perms.WithChecker(s.checker)
	}
	s.broker = access.NewBroker(s.refs, perms, picker, logger)
	s.file = progressfile.New(s.broker, cfg.Progress.SidecarName, logger)
	return s
}

// Refs exposes the folder reference store.
func (s *Service) Refs() *access.Store { return s.refs }

// Broker exposes the permission broker.
func (s *Service) Broker() *access.Broker { return s.broker }

// ProgressStore exposes the progress database.
func (s *Service) ProgressStore() *progress.Store { return s.progress }

// Cache exposes the metadata cache.
func (s *Service) Cache() *metacache.Cache { return s.cache }

// OpenFolder obtains a folder, scans it, and makes it the current course.
// Cancellation and unavailable folders are reported through FolderState, not
// as errors.
func (s *Service) OpenFolder(ctx context.Context, req OpenRequest) (FolderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, err := s.acquire(ctx, req)
	if err != nil {
		return FolderState{}, err
	}
	if grant == nil {
		if req.FolderName != "" || strings.TrimSpace(req.Path) != "" {
			return FolderState{Status: FolderUnavailable, FolderName: req.FolderName}, nil
		}
		return FolderState{Status: FolderCancelled}, nil
	}

	handle := grant.Handle
	courseID := CourseID(grant.FolderName)
	ctx = logging.WithCourseID(ctx, courseID)
	logger := logging.WithContext(ctx, s.logger)

	videos, err := s.scanner.Scan(ctx, handle.FS(), req.OnProgress)
	if err != nil {
		_ = handle.Close()
		if errors.Is(err, scanner.ErrRootUnreadable) {
			logging.WarnWithContext(logger, "course folder unreadable", "folder_unavailable",
				logging.Folder(grant.FolderName),
				logging.Error(err),
				logging.String(logging.FieldImpact, "course not opened"),
			)
			return FolderState{Status: FolderUnavailable, FolderName: grant.FolderName}, nil
		}
		return FolderState{}, err
	}

	state := FolderState{
		Status:     FolderReady,
		CourseID:   courseID,
		FolderName: grant.FolderName,
		Path:       handle.Path(),
		Videos:     len(videos),
		WasCached:  grant.WasCached,
	}

	hit, err := s.cache.Reconcile(ctx, grant.FolderName, handle.Path(), videos)
	if err != nil {
		logging.WarnWithContext(logger, "metadata cache unavailable", "metadata_cache_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "scan fingerprints not stored"),
		)
	}
	state.CacheHit = hit

	if req.AllowWrite {
		state.Writable = s.broker.EnsureWrite(access.WithWriteApproval(ctx, true), handle)
	} else {
		state.Writable = handle.Reference().HasGrant(access.ModeReadWrite)
	}

	dropped, err := s.broker.Sweep(ctx)
	if err != nil {
		logger.Debug("folder sweep failed", logging.Error(err))
	}
	state.Dropped = dropped

	if rows := s.file.Read(ctx, handle, courseID); len(rows) > 0 {
		merged, err := s.progress.Merge(ctx, rows)
		if err != nil {
			logging.WarnWithContext(logger, "progress file merge failed", "progress_file_merge_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "progress from the folder was not restored"),
			)
		}
		state.Merged = merged
	}

	s.closeCourseLocked(ctx)
	s.course = newOpenCourse(courseID, handle, videos)
	s.stale.Store(false)
	s.startWatcherLocked(grant.FolderName, handle.Path())

	logger.Info("course opened",
		logging.Folder(grant.FolderName),
		logging.Int("videos", len(videos)),
		logging.Bool("cache_hit", hit),
		logging.Int("merged", state.Merged),
	)
	return state, nil
}

func (s *Service) acquire(ctx context.Context, req OpenRequest) (*access.Grant, error) {
	switch {
	case req.Path != "":
		return s.broker.ForceNew(access.WithPickedPath(ctx, req.Path))
	case req.FolderName != "":
		return s.broker.Reopen(ctx, req.FolderName)
	case req.ForceNew:
		return s.broker.ForceNew(ctx)
	default:
		return s.broker.AcquireAccess(ctx)
	}
}

func newOpenCourse(id string, handle *access.Handle, videos []scanner.VideoFile) *openCourse {
	byPath := make(map[string]int, len(videos))
	for i, v := range videos {
		byPath[v.RelativePath] = i
	}
	return &openCourse{id: id, handle: handle, videos: videos, byPath: byPath}
}

func (s *Service) startWatcherLocked(folderKey, root string) {
	if !s.watchEnabled {
		return
	}
	w, err := watch.New(root, watch.Options{
		Relevant: func(name string) bool {
			ext := strings.ToLower(path.Ext(name))
			return s.scanner.IsVideo(name) || ext == ".vtt" || ext == ".srt"
		},
		OnChange: func() {
			s.stale.Store(true)
			if err := s.cache.MarkStale(context.Background(), folderKey); err != nil {
				s.logger.Debug("mark cache stale failed", logging.Error(err))
			}
		},
	}, s.logger)
	if err != nil {
		s.logger.Debug("folder watcher unavailable", logging.Folder(folderKey), logging.Error(err))
		return
	}
	s.watcher = w
}

// Current returns the open course, or nil.
func (s *Service) Current() *Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course == nil {
		return nil
	}
	return &Course{
		ID:         s.course.id,
		FolderName: s.course.handle.Name(),
		Path:       s.course.handle.Path(),
		Videos:     append([]scanner.VideoFile(nil), s.course.videos...),
	}
}

// Videos returns the open course's lectures in course order, rescanning first
// when the watcher saw the folder change.
func (s *Service) Videos(ctx context.Context) ([]scanner.VideoFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course == nil {
		return nil, ErrNoCourse
	}
	if s.stale.Swap(false) {
		if err := s.rescanLocked(ctx); err != nil {
			s.stale.Store(true)
			return nil, err
		}
	}
	return append([]scanner.VideoFile(nil), s.course.videos...), nil
}

func (s *Service) rescanLocked(ctx context.Context) error {
	c := s.course
	videos, err := s.scanner.Scan(ctx, c.handle.FS(), nil)
	if err != nil {
		return fmt.Errorf("rescan course: %w", err)
	}
	if _, err := s.cache.Reconcile(ctx, c.handle.Name(), c.handle.Path(), videos); err != nil {
		s.logger.Debug("metadata cache refresh failed", logging.Error(err))
	}
	s.course = newOpenCourse(c.id, c.handle, videos)
	s.course.dirty = c.dirty
	return nil
}

// Progress returns the stored progress for one lecture of the open course.
func (s *Service) Progress(ctx context.Context, lectureID string) (*progress.VideoProgress, error) {
	courseID, err := s.courseID()
	if err != nil {
		return nil, err
	}
	return s.progress.Get(ctx, courseID, lectureID)
}

// CourseProgress returns every progress row of the open course.
func (s *Service) CourseProgress(ctx context.Context) ([]progress.VideoProgress, error) {
	courseID, err := s.courseID()
	if err != nil {
		return nil, err
	}
	return s.progress.ListForCourse(ctx, courseID)
}

func (s *Service) courseID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course == nil {
		return "", ErrNoCourse
	}
	return s.course.id, nil
}

// Report saves a playback update. The local database is written on every
// report; the portable file follows the throttle unless the event forces it.
func (s *Service) Report(ctx context.Context, r Report) (progress.VideoProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.course
	if c == nil {
		return progress.VideoProgress{}, ErrNoCourse
	}
	if _, ok := c.byPath[r.LectureID]; !ok {
		return progress.VideoProgress{}, fmt.Errorf("%w: %s", ErrUnknownLecture, r.LectureID)
	}
	if r.Event == "" {
		r.Event = EventTick
	}

	current, duration := r.CurrentSeconds, r.DurationSeconds
	if r.Event == EventEnded && duration > 0 {
		current = duration
	}
	saved, err := s.progress.Save(ctx, progress.VideoProgress{
		CourseID:             c.id,
		LectureID:            r.LectureID,
		ProgressPercent:      progress.Percent(current, duration),
		CurrentTimeSeconds:   int(current),
		TotalDurationSeconds: int(duration),
	})
	if err != nil {
		return progress.VideoProgress{}, err
	}
	c.dirty = true
	s.logger.Debug("progress saved",
		logging.Course(c.id),
		logging.Lecture(r.LectureID),
		logging.String("event", string(r.Event)),
		logging.Bool("completed", saved.Completed),
	)

	write := func() error { return s.writeFileLocked(ctx, c) }
	if r.Event.forcesFileWrite() {
		_ = s.throttle.Force(c.id, write)
	} else {
		_, _ = s.throttle.Attempt(c.id, write)
	}
	return saved, nil
}

// writeFileLocked mirrors the course's progress into the portable file.
// Failures are logged; the database stays authoritative.
func (s *Service) writeFileLocked(ctx context.Context, c *openCourse) error {
	rows, err := s.progress.ListForCourse(ctx, c.id)
	if err != nil {
		return err
	}
	if _, err := s.file.Write(ctx, c.handle, c.id, rows); err != nil {
		logging.WarnWithContext(s.logger, "progress file write failed", "progress_file_write_failed",
			logging.Course(c.id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "portable progress is out of date"),
		)
		return err
	}
	c.dirty = false
	return nil
}

// ResetProgress clears stored progress for one lecture of the open course,
// or for the whole course when lectureID is empty, and rewrites the portable
// file so the next open does not restore the cleared rows.
func (s *Service) ResetProgress(ctx context.Context, lectureID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.course
	if c == nil {
		return 0, ErrNoCourse
	}
	var removed int64
	if lectureID == "" {
		n, err := s.progress.DeleteCourse(ctx, c.id)
		if err != nil {
			return 0, err
		}
		removed = n
	} else {
		ok, err := s.progress.Delete(ctx, c.id, lectureID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		removed = 1
	}
	if removed > 0 {
		_ = s.throttle.Force(c.id, func() error { return s.writeFileLocked(ctx, c) })
	}
	return removed, nil
}

// SubtitleTracks lists caption tracks for a lecture of the open course.
func (s *Service) SubtitleTracks(lectureID string) ([]subtitles.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course == nil {
		return nil, ErrNoCourse
	}
	if _, ok := s.course.byPath[lectureID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLecture, lectureID)
	}
	return s.subtitles.FindTracks(s.course.handle.FS(), lectureID), nil
}

// OpenVideo opens a lecture file for reading. The caller closes it.
func (s *Service) OpenVideo(lectureID string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course == nil {
		return nil, ErrNoCourse
	}
	if _, ok := s.course.byPath[lectureID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLecture, lectureID)
	}
	return s.course.handle.Root().Open(lectureID)
}

// OpenSubtitle returns a caption file of the open course as WebVTT.
func (s *Service) OpenSubtitle(relPath string) ([]byte, error) {
	ext := strings.ToLower(path.Ext(relPath))
	if ext != ".vtt" && ext != ".srt" {
		return nil, fmt.Errorf("%w: %s", ErrNotCaption, relPath)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course == nil {
		return nil, ErrNoCourse
	}
	f, err := s.course.handle.Root().Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out bytes.Buffer
	if err := subtitles.ToWebVTT(io.LimitReader(f, maxCaptionBytes), &out); err != nil {
		return nil, fmt.Errorf("convert captions: %w", err)
	}
	return out.Bytes(), nil
}

// Resume picks the lecture to continue with.
func (s *Service) Resume(ctx context.Context) (*ResumeTarget, error) {
	s.mu.Lock()
	c := s.course
	s.mu.Unlock()
	if c == nil {
		return nil, ErrNoCourse
	}
	rows, err := s.progress.ListForCourse(ctx, c.id)
	if err != nil {
		return nil, err
	}
	return pickResume(c.videos, rows), nil
}

// Close writes unsaved progress to the portable file and releases the open
// folder.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCourseLocked(ctx)
	return nil
}

func (s *Service) closeCourseLocked(ctx context.Context) {
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
	c := s.course
	if c == nil {
		return
	}
	s.course = nil
	if c.dirty && ctx.Err() == nil {
		_ = s.throttle.Force(c.id, func() error { return s.writeFileLocked(ctx, c) })
	}
	s.throttle.Reset(c.id)
	_ = c.handle.Close()
}
