package scanner

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"lectern/internal/logging"
)

func course(files map[string]int) fstest.MapFS {
	fsys := fstest.MapFS{}
	mod := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for name, size := range files {
		fsys[name] = &fstest.MapFile{Data: make([]byte, size), ModTime: mod}
	}
	return fsys
}

func TestScanEndToEndOrdering(t *testing.T) {
	fsys := course(map[string]int{
		"02 Setup.mp4": 1024,
		"01 Intro.mp4": 512000,
	})
	s := New(Options{Logger: logging.NewNop()})

	videos, err := s.Scan(context.Background(), fsys, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if videos[0].DisplayName != "Intro" || videos[1].DisplayName != "Setup" {
		t.Fatalf("unexpected order: %+v", videos)
	}
	if videos[0].Size != 512000 {
		t.Fatalf("unexpected size %d", videos[0].Size)
	}
	if videos[0].LastModified != time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli() {
		t.Fatalf("unexpected modification time %d", videos[0].LastModified)
	}
}

func TestScanFiltersAndRecurses(t *testing.T) {
	fsys := course(map[string]int{
		"Section 10/01 Wrap.mp4":    1,
		"Section 2/02 Hooks.MKV":    1,
		"Section 2/01 State.webm":   1,
		"Section 2/01 State.en.vtt": 1,
		"Section 2/notes.pdf":       1,
		"podcast.mp3":               1,
		"theme.m4a":                 1,
		".hidden/secret.mp4":        1,
		"._01 Intro.mp4":            1,
		"01 Intro.mp4":              1,
	})
	s := New(Options{Logger: logging.NewNop()})

	videos, err := s.Scan(context.Background(), fsys, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var got []string
	for _, v := range videos {
		got = append(got, v.RelativePath)
	}
	want := []string{"01 Intro.mp4", "Section 2/01 State.webm", "Section 2/02 Hooks.MKV", "Section 10/01 Wrap.mp4"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected scan result:\n got %v\nwant %v", got, want)
	}
}

func TestScanAudioDenylistWinsOverAllowlist(t *testing.T) {
	fsys := course(map[string]int{"lecture.m4a": 1, "lecture.mp4": 1})
	s := New(Options{VideoExtensions: []string{".mp4", ".m4a"}, Logger: logging.NewNop()})

	videos, err := s.Scan(context.Background(), fsys, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(videos) != 1 || videos[0].Name != "lecture.mp4" {
		t.Fatalf("expected only the mp4, got %+v", videos)
	}
}

func TestScanReportsProgressAndYields(t *testing.T) {
	files := map[string]int{}
	for _, name := range []string{"a/1.mp4", "a/2.mp4", "b/3.mp4", "b/4.mp4", "c/5.mp4"} {
		files[name] = 1
	}
	s := New(Options{YieldEveryFiles: 2, YieldEveryFolders: 1, Logger: logging.NewNop()})
	yields := 0
	s.yield = func() { yields++ }

	var events []Progress
	videos, err := s.Scan(context.Background(), course(files), func(p Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(events) != len(videos) {
		t.Fatalf("expected one progress event per file, got %d for %d files", len(events), len(videos))
	}
	for i, ev := range events {
		if ev.Count != i+1 {
			t.Fatalf("event %d has count %d", i, ev.Count)
		}
	}
	first := events[0]
	if first.FoldersScanned != 1 || first.FoldersQueued != 2 {
		t.Fatalf("unexpected first progress event: %+v", first)
	}
	// 2 file-cadence yields (after files 2 and 4) and 4 folder yields.
	if yields != 6 {
		t.Fatalf("expected 6 yields, got %d", yields)
	}
}

func TestScanStopsOnCancellation(t *testing.T) {
	s := New(Options{YieldEveryFiles: 1, Logger: logging.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	s.yield = cancel

	_, err := s.Scan(ctx, course(map[string]int{"1.mp4": 1, "2.mp4": 1}), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingFS struct {
	fstest.MapFS
	failDir string
}

func (f failingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == f.failDir {
		return nil, fs.ErrPermission
	}
	return f.MapFS.ReadDir(name)
}

func TestScanSkipsUnreadableFolder(t *testing.T) {
	fsys := failingFS{
		MapFS:   course(map[string]int{"locked/1.mp4": 1, "open/2.mp4": 1}),
		failDir: "locked",
	}
	s := New(Options{Logger: logging.NewNop()})

	videos, err := s.Scan(context.Background(), fsys, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(videos) != 1 || videos[0].RelativePath != "open/2.mp4" {
		t.Fatalf("expected the readable folder only, got %+v", videos)
	}
}

func TestScanUnreadableRoot(t *testing.T) {
	fsys := failingFS{MapFS: course(map[string]int{"1.mp4": 1}), failDir: "."}
	s := New(Options{Logger: logging.NewNop()})

	if _, err := s.Scan(context.Background(), fsys, nil); !errors.Is(err, ErrRootUnreadable) {
		t.Fatalf("expected ErrRootUnreadable, got %v", err)
	}
}

func TestScanResultIsNaturallyOrdered(t *testing.T) {
	files := map[string]int{}
	for _, name := range []string{"ep10.mp4", "ep2.mp4", "ep1.mp4", "Ep3.mp4", "ep20.mp4", "s1/ep11.mp4", "s1/ep9.mp4"} {
		files[name] = 1
	}
	videos, err := New(Options{Logger: logging.NewNop()}).Scan(context.Background(), course(files), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for i := 1; i < len(videos); i++ {
		prev, cur := videos[i-1], videos[i]
		c := CompareNatural(prev.RelativePath, cur.RelativePath)
		if c > 0 || (c == 0 && CompareNatural(prev.Name, cur.Name) > 0) {
			t.Fatalf("out of order at %d: %q before %q", i, prev.RelativePath, cur.RelativePath)
		}
	}
}

func TestSortVideosLatin1Names(t *testing.T) {
	videos := []VideoFile{
		{Name: "caf\xe910.mp4", RelativePath: "caf\xe910.mp4"},
		{Name: "caf\xe92.mp4", RelativePath: "caf\xe92.mp4"},
	}
	SortVideos(videos)
	if videos[0].Name != "caf\xe92.mp4" {
		t.Fatalf("unexpected order: %q, %q", videos[0].Name, videos[1].Name)
	}
}
