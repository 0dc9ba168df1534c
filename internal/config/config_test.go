package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "lectern")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "lectern.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7611" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Sync.Enabled {
		t.Fatal("expected remote sync disabled by default")
	}
	if cfg.Progress.CompletionThreshold != 95 {
		t.Fatalf("unexpected completion threshold: %v", cfg.Progress.CompletionThreshold)
	}
	if cfg.FileThrottle() != time.Minute {
		t.Fatalf("unexpected file throttle: %v", cfg.FileThrottle())
	}
	if cfg.Progress.SidecarName != ".lectern-progress.json" {
		t.Fatalf("unexpected sidecar name: %q", cfg.Progress.SidecarName)
	}
	if cfg.Subtitles.DefaultLanguage != "en" {
		t.Fatalf("unexpected default subtitle language: %q", cfg.Subtitles.DefaultLanguage)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `[paths]
data_dir = "~/courses-state"
api_bind = " 127.0.0.1:9000 "

[scanner]
video_extensions = ["MP4", ".mkv", "mp4", ""]
yield_every_files = 0

[progress]
file_throttle_seconds = 30

[subtitles]
default_language = " DE "

[sync]
enabled = true
base_url = "https://courses.example/api/"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "courses-state") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9000" {
		t.Fatalf("expected trimmed api bind, got %q", cfg.Paths.APIBind)
	}
	if got := strings.Join(cfg.Scanner.VideoExtensions, ","); got != ".mp4,.mkv" {
		t.Fatalf("unexpected video extensions: %s", got)
	}
	if cfg.Scanner.YieldEveryFiles != 50 {
		t.Fatalf("expected yield cadence default, got %d", cfg.Scanner.YieldEveryFiles)
	}
	if cfg.FileThrottle() != 30*time.Second {
		t.Fatalf("unexpected throttle: %v", cfg.FileThrottle())
	}
	if cfg.Subtitles.DefaultLanguage != "de" {
		t.Fatalf("unexpected subtitle language: %q", cfg.Subtitles.DefaultLanguage)
	}
	if cfg.Sync.BaseURL != "https://courses.example/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Sync.BaseURL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestSyncTokenFallsBackToEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LECTERN_SYNC_TOKEN", " secret ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Sync.Token != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Sync.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "lectern") {
		t.Fatalf("expected data dir to contain lectern, got %q", cfg.Paths.DataDir)
	}
	if cfg.Progress.SidecarName != config.Default().Progress.SidecarName {
		t.Fatalf("sample sidecar name drifted from defaults: %q", cfg.Progress.SidecarName)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "threshold above 100",
			mutate: func(c *config.Config) { c.Progress.CompletionThreshold = 120 },
			want:   "progress.completion_threshold",
		},
		{
			name:   "sidecar with separator",
			mutate: func(c *config.Config) { c.Progress.SidecarName = "sub/progress.json" },
			want:   "progress.sidecar_name",
		},
		{
			name:   "sync enabled without url",
			mutate: func(c *config.Config) { c.Sync.Enabled = true },
			want:   "sync.base_url",
		},
		{
			name:   "sync relative url",
			mutate: func(c *config.Config) { c.Sync.Enabled = true; c.Sync.BaseURL = "courses/api" },
			want:   "absolute URL",
		},
		{
			name: "video list fully shadowed by audio",
			mutate: func(c *config.Config) {
				c.Scanner.VideoExtensions = []string{".mp3"}
			},
			want: "scanner.video_extensions",
		},
		{
			name:   "unknown log level",
			mutate: func(c *config.Config) { c.Logging.Level = "chatty" },
			want:   "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = t.TempDir()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
