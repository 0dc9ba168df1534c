package progressfile

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lectern/internal/access"
	"lectern/internal/logging"
	"lectern/internal/progress"
)

type gateFunc func(ctx context.Context, handle *access.Handle) bool

func (g gateFunc) EnsureWrite(ctx context.Context, handle *access.Handle) bool { return g(ctx, handle) }

func allowWrites() WriteGate {
	return gateFunc(func(context.Context, *access.Handle) bool { return true })
}

func openCourse(t *testing.T) (*access.Handle, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Go Course")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	handle, err := access.OpenHandle(dir)
	if err != nil {
		t.Fatalf("OpenHandle: %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })
	return handle, dir
}

func sampleRows() []progress.VideoProgress {
	return []progress.VideoProgress{
		{CourseID: "local:Go Course", LectureID: "01 Intro.mp4", ProgressPercent: 100, CurrentTimeSeconds: 300, TotalDurationSeconds: 300, Completed: true, LastWatchedAt: 1000},
		{CourseID: "local:Go Course", LectureID: "part 2/02 Types.mp4", ProgressPercent: 40, CurrentTimeSeconds: 120, TotalDurationSeconds: 300, LastWatchedAt: 2000},
	}
}

func TestWriteThenRead(t *testing.T) {
	handle, dir := openCourse(t)
	file := New(allowWrites(), "", logging.NewNop())
	file.now = func() time.Time { return time.UnixMilli(5000) }
	ctx := context.Background()

	ok, err := file.Write(ctx, handle, "local:Go Course", sampleRows())
	if err != nil || !ok {
		t.Fatalf("Write: %v %v", ok, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, DefaultName))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("sidecar is not json: %v", err)
	}
	if doc["version"] != "1.0" || doc["courseId"] != "local:Go Course" || doc["updatedAt"] != float64(5000) {
		t.Fatalf("unexpected document header: %v", doc)
	}
	rows := doc["progress"].([]any)
	first := rows[0].(map[string]any)
	if _, hasCourse := first["courseId"]; hasCourse {
		t.Fatalf("rows should not repeat courseId: %v", first)
	}
	if first["lectureId"] != "01 Intro.mp4" || first["completed"] != true {
		t.Fatalf("unexpected row: %v", first)
	}

	got := file.Read(ctx, handle, "local:Go Course")
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[1] != sampleRows()[1] {
		t.Fatalf("round trip mismatch: %+v", got[1])
	}
}

func TestWriteTruncatesPreviousDocument(t *testing.T) {
	handle, _ := openCourse(t)
	file := New(allowWrites(), "", logging.NewNop())
	ctx := context.Background()

	if _, err := file.Write(ctx, handle, "local:Go Course", sampleRows()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := file.Write(ctx, handle, "local:Go Course", sampleRows()[:1]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := file.Read(ctx, handle, "local:Go Course"); len(got) != 1 {
		t.Fatalf("expected 1 row after rewrite, got %d", len(got))
	}
}

func TestWriteWithoutPermissionIsNoop(t *testing.T) {
	handle, dir := openCourse(t)
	deny := gateFunc(func(context.Context, *access.Handle) bool { return false })
	var logs bytes.Buffer
	file := New(deny, "", slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})))

	for range 3 {
		ok, err := file.Write(context.Background(), handle, "local:Go Course", sampleRows())
		if err != nil || ok {
			t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultName)); !os.IsNotExist(err) {
		t.Fatalf("sidecar should not exist: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("missing write access should not log above debug: %s", logs.String())
	}
}

func TestReadRejectsStructuralProblems(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing", ""},
		{"bad json", "{not json"},
		{"wrong version", `{"version":"2.0","courseId":"local:Go Course","updatedAt":1,"progress":[{"lectureId":"a.mp4"}]}`},
		{"other course", `{"version":"1.0","courseId":"local:Rust","updatedAt":1,"progress":[{"lectureId":"a.mp4"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, dir := openCourse(t)
			if tt.content != "" {
				if err := os.WriteFile(filepath.Join(dir, DefaultName), []byte(tt.content), 0o644); err != nil {
					t.Fatalf("write sidecar: %v", err)
				}
			}
			file := New(allowWrites(), "", logging.NewNop())
			if got := file.Read(context.Background(), handle, "local:Go Course"); got != nil {
				t.Fatalf("expected nil, got %+v", got)
			}
		})
	}
}
