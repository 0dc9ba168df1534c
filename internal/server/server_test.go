package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/access"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/player"
	"lectern/internal/progress"
	"lectern/internal/server"
	"lectern/internal/testsupport"
)

type fixture struct {
	cfg *config.Config
	svc *player.Service
	srv *server.Server
	api *httptest.Server
	dir string
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	return newFixtureWithPrompter(t, access.FixedPrompter{AllowWrite: true}, opts...)
}

func newFixtureWithPrompter(t *testing.T, prompter access.Prompter, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenStore(t, cfg)
	svc := player.New(cfg, db, prompter, logging.NewNop(),
		player.WithChecker(func(string, access.Mode) error { return nil }),
		player.WithoutWatcher(),
	)
	syncer := progress.NewSyncer(svc.ProgressStore(), cfg.Sync, logging.NewNop())
	srv, err := server.New(cfg, svc, syncer, logging.NewNop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		api.Close()
		_ = svc.Close(context.Background())
	})

	dir := filepath.Join(t.TempDir(), "Go")
	testsupport.WriteFile(t, filepath.Join(dir, "01 Basics.mp4"), 4096)
	testsupport.WriteFile(t, filepath.Join(dir, "02 Types.mp4"), 1024)
	return &fixture{cfg: cfg, svc: svc, srv: srv, api: api, dir: dir}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.api.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.api.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func writeText(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/folder", map[string]any{"path": f.dir})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open folder status = %d", resp.StatusCode)
	}
	var state player.FolderState
	decodeBody(t, resp, &state)
	if state.Status != player.FolderReady || state.CourseID != "local:Go" {
		t.Fatalf("unexpected folder state: %+v", state)
	}
}

func TestStatusReportsCourseAndRequestID(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	resp := f.do(t, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	var status server.Status
	decodeBody(t, resp, &status)
	if status.Course == nil || status.Course.Videos != 2 || status.SyncEnabled {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestVideosRequireOpenFolder(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/videos", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 without a course, got %d", resp.StatusCode)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	resp := f.do(t, http.MethodPost, "/api/progress", map[string]any{
		"lectureId":            "01 Basics.mp4",
		"currentTimeSeconds":   97,
		"totalDurationSeconds": 100,
		"event":                "pause",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d", resp.StatusCode)
	}
	var saved progress.VideoProgress
	decodeBody(t, resp, &saved)
	if !saved.Completed {
		t.Fatalf("expected completed lecture, got %+v", saved)
	}

	resp = f.do(t, http.MethodGet, "/api/progress?lecture="+url.QueryEscape("01 Basics.mp4"), nil)
	var got progress.VideoProgress
	decodeBody(t, resp, &got)
	if got.ProgressPercent != 97 {
		t.Fatalf("unexpected progress: %+v", got)
	}

	resp = f.do(t, http.MethodGet, "/api/resume", nil)
	var target player.ResumeTarget
	decodeBody(t, resp, &target)
	if target.Video.RelativePath != "02 Types.mp4" {
		t.Fatalf("expected resume at Types, got %+v", target)
	}

	resp = f.do(t, http.MethodPost, "/api/progress", map[string]any{"lectureId": "01 Basics.mp4", "event": "rewind"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/api/progress", map[string]any{"lectureId": "nope.mp4"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown lecture, got %d", resp.StatusCode)
	}
}

func TestStreamServesRanges(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	req, _ := http.NewRequest(http.MethodGet, f.api.URL+"/api/videos/stream?path="+url.QueryEscape("02 Types.mp4"), nil)
	req.Header.Set("Range", "bytes=0-99")
	resp, err := f.api.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(body))
	}
}

func TestSubtitleEndpoints(t *testing.T) {
	f := newFixture(t)
	writeText(t, filepath.Join(f.dir, "01 Basics.en.srt"), "1\n00:00:00,500 --> 00:00:01,000\nHi\n")
	f.open(t)

	resp := f.do(t, http.MethodGet, "/api/subtitles?video="+url.QueryEscape("01 Basics.mp4"), nil)
	var listing struct {
		Tracks []struct {
			Path    string `json:"path"`
			Default bool   `json:"default"`
		} `json:"tracks"`
	}
	decodeBody(t, resp, &listing)
	if len(listing.Tracks) != 1 || !listing.Tracks[0].Default {
		t.Fatalf("unexpected tracks: %+v", listing)
	}

	resp = f.do(t, http.MethodGet, "/api/subtitles/file?path="+url.QueryEscape(listing.Tracks[0].Path), nil)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/vtt") {
		t.Fatalf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "00:00:00.500 --> 00:00:01.000") {
		t.Fatalf("unexpected vtt: %q", body)
	}
}

func TestSyncDisabled(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/sync", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while sync is disabled, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodDelete, "/api/status", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodGet {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, resp.Header.Get("Allow"))
	}
}

func TestStartHoldsDataDirectoryLock(t *testing.T) {
	f := newFixture(t)
	if err := f.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.srv.Stop()
	if err := f.srv.Start(context.Background()); err == nil {
		t.Fatal("expected error starting twice")
	}

	other, err := server.New(f.cfg, f.svc, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil {
		other.Stop()
		t.Fatal("expected lock contention error")
	}

	resp, err := http.Get("http://" + f.srv.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
}

func TestOpenFolderAllowWrite(t *testing.T) {
	f := newFixtureWithPrompter(t, access.FixedPrompter{})

	resp := f.do(t, http.MethodPost, "/api/folder", map[string]any{"path": f.dir})
	var state player.FolderState
	decodeBody(t, resp, &state)
	if state.Status != player.FolderReady || state.Writable {
		t.Fatalf("expected read-only folder, got %+v", state)
	}

	resp = f.do(t, http.MethodPost, "/api/folder", map[string]any{"path": f.dir, "allowWrite": true})
	decodeBody(t, resp, &state)
	if !state.Writable {
		t.Fatalf("expected writable folder, got %+v", state)
	}
}
