package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"lectern/internal/access"
	"lectern/internal/logging"
	"lectern/internal/player"
	"lectern/internal/progress"
	"lectern/internal/subtitles"
)

const maxBodyBytes = 1 << 20

type openFolderRequest struct {
	Path       string `json:"path"`
	FolderName string `json:"folderName"`
	ForceNew   bool   `json:"forceNew"`
	AllowWrite bool   `json:"allowWrite"`
}

type reportRequest struct {
	LectureID            string  `json:"lectureId"`
	CurrentTimeSeconds   float64 `json:"currentTimeSeconds"`
	TotalDurationSeconds float64 `json:"totalDurationSeconds"`
	Event                string  `json:"event"`
}

type videosResponse struct {
	CourseID string `json:"courseId"`
	Videos   any    `json:"videos"`
}

type syncResponse struct {
	Batches int    `json:"batches"`
	Sent    int    `json:"sent"`
	Acked   int64  `json:"acked"`
	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler returns the API routes wrapped in request-id middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/folder", s.handleFolder)
	mux.HandleFunc("/api/folders", s.handleFolders)
	mux.HandleFunc("/api/videos", s.handleVideos)
	mux.HandleFunc("/api/videos/stream", s.handleStream)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/subtitles", s.handleSubtitles)
	mux.HandleFunc("/api/subtitles/file", s.handleSubtitleFile)
	mux.HandleFunc("/api/sync", s.handleSync)
	return withRequestID(mux)
}

// withRequestID tags each request with a correlation id, reusing a valid
// incoming X-Request-ID.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.Status(r.Context()))
}

func (s *Server) handleFolder(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		course := s.svc.Current()
		if course == nil {
			s.writeError(w, http.StatusNotFound, "no course folder open")
			return
		}
		s.writeJSON(w, http.StatusOK, CourseSummary{ID: course.ID, FolderName: course.FolderName, Path: course.Path, Videos: len(course.Videos)})
	case http.MethodPost:
		var req openFolderRequest
		if !s.decode(w, r, &req) {
			return
		}
		state, err := s.svc.OpenFolder(r.Context(), player.OpenRequest{
			Path:       strings.TrimSpace(req.Path),
			FolderName: strings.TrimSpace(req.FolderName),
			ForceNew:   req.ForceNew,
			AllowWrite: req.AllowWrite,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, state)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	refs, err := s.svc.Refs().List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if refs == nil {
		refs = []access.Reference{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"folders": refs})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	videos, err := s.svc.Videos(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := videosResponse{Videos: videos}
	if course := s.svc.Current(); course != nil {
		resp.CourseID = course.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	lecture := r.URL.Query().Get("path")
	f, err := s.svc.OpenVideo(lecture)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	http.ServeContent(w, r, path.Base(lecture), info.ModTime(), f)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		lecture := strings.TrimSpace(r.URL.Query().Get("lecture"))
		if lecture == "" {
			rows, err := s.svc.CourseProgress(r.Context())
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			if rows == nil {
				rows = []progress.VideoProgress{}
			}
			s.writeJSON(w, http.StatusOK, map[string]any{"progress": rows})
			return
		}
		row, err := s.svc.Progress(r.Context(), lecture)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if row == nil {
			s.writeError(w, http.StatusNotFound, "no progress for lecture")
			return
		}
		s.writeJSON(w, http.StatusOK, row)
	case http.MethodPost:
		var req reportRequest
		if !s.decode(w, r, &req) {
			return
		}
		event, err := player.ParseEvent(req.Event)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.svc.Report(r.Context(), player.Report{
			LectureID:       req.LectureID,
			CurrentSeconds:  req.CurrentTimeSeconds,
			DurationSeconds: req.TotalDurationSeconds,
			Event:           event,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, saved)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	target, err := s.svc.Resume(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if target == nil {
		s.writeError(w, http.StatusNotFound, "course has no lectures")
		return
	}
	s.writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tracks, err := s.svc.SubtitleTracks(r.URL.Query().Get("video"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []subtitles.Track{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (s *Server) handleSubtitleFile(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	data, err := s.svc.OpenSubtitle(r.URL.Query().Get("path"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	result, err := s.syncer.Push(r.Context())
	if errors.Is(err, progress.ErrSyncDisabled) {
		s.writeError(w, http.StatusConflict, "progress sync is disabled")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, syncResponse{
		Batches: result.Batches,
		Sent:    result.Sent,
		Acked:   result.Acked,
		Outcome: string(result.Last.Kind),
		Message: result.Last.Message,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, player.ErrNoCourse):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, player.ErrUnknownLecture), errors.Is(err, fs.ErrNotExist):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, player.ErrNotCaption), errors.Is(err, progress.ErrInvalidKey):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.WithContext(r.Context(), s.logger).Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
		body := map[string]string{"error": err.Error()}
		if id, ok := logging.RequestIDFromContext(r.Context()); ok {
			body["requestId"] = id
		}
		s.writeJSON(w, http.StatusInternalServerError, body)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	methodNotAllowed(w, methods...)
	return false
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(`{"error":"method not allowed"}` + "\n"))
}
