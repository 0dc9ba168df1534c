package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/player"
	"lectern/internal/progress"
)

// Server is the local HTTP API.
type Server struct {
	bind      string
	svc       *player.Service
	syncer    *progress.Syncer
	scheduler *progress.Scheduler
	logger    *slog.Logger
	dbPath    string
	started   time.Time

	lockPath string
	lock     *flock.Flock

	listener net.Listener
	http     *http.Server
	running  atomic.Bool
	cancel   context.CancelFunc
}

// Status is the payload of GET /api/status.
type Status struct {
	Running     bool           `json:"running"`
	Address     string         `json:"address"`
	Uptime      string         `json:"uptime"`
	DBPath      string         `json:"dbPath"`
	LockPath    string         `json:"lockPath"`
	Course      *CourseSummary `json:"course,omitempty"`
	QueueLength int            `json:"queueLength"`
	SyncEnabled bool           `json:"syncEnabled"`
	SyncRunning bool           `json:"syncRunning"`
}

// CourseSummary describes the open course without its lecture list.
type CourseSummary struct {
	ID         string `json:"courseId"`
	FolderName string `json:"folderName"`
	Path       string `json:"path"`
	Videos     int    `json:"videos"`
}

// New constructs a stopped server. syncer may be nil.
func New(cfg *config.Config, svc *player.Service, syncer *progress.Syncer, logger *slog.Logger) (*Server, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("server requires config and player service")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("server requires paths.api_bind")
	}
	logger = logging.NewComponentLogger(logger, "api-server")
	s := &Server{
		bind:     bind,
		svc:      svc,
		syncer:   syncer,
		logger:   logger,
		dbPath:   cfg.DatabasePath(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if syncer.Enabled() {
		s.scheduler = progress.NewScheduler(syncer, cfg.SyncInterval(), logger)
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Start acquires the data directory lock, listens, and starts background sync.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern server is already using this data directory")
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.scheduler != nil {
		if err := s.scheduler.Start(runCtx); err != nil {
			cancel()
			_ = listener.Close()
			_ = s.lock.Unlock()
			return fmt.Errorf("start sync: %w", err)
		}
	}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart lectern serve"),
			)
		}
	}()

	s.started = time.Now()
	s.running.Store(true)
	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", s.lockPath),
	)
	return nil
}

// Stop shuts the server down, flushes the open course, and releases the lock.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.http.Shutdown(shutdownCtx)
	if err := s.svc.Close(shutdownCtx); err != nil {
		s.logger.Warn("failed to close course", logging.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release server lock", logging.Error(err))
	}
	s.listener = nil
	s.running.Store(false)
	s.logger.Info("api server stopped")
}

// Addr returns the listening address, or the configured bind when stopped.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// Status reports runtime information.
func (s *Server) Status(ctx context.Context) Status {
	status := Status{
		Running:     s.running.Load(),
		Address:     s.Addr(),
		DBPath:      s.dbPath,
		LockPath:    s.lockPath,
		SyncEnabled: s.syncer.Enabled(),
		SyncRunning: s.scheduler != nil && s.scheduler.Running(),
	}
	if status.Running {
		status.Uptime = time.Since(s.started).Round(time.Second).String()
	}
	if course := s.svc.Current(); course != nil {
		status.Course = &CourseSummary{ID: course.ID, FolderName: course.FolderName, Path: course.Path, Videos: len(course.Videos)}
	}
	if n, err := s.svc.ProgressStore().QueueLength(ctx); err == nil {
		status.QueueLength = n
	}
	return status
}
