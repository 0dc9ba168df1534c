package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	baseDir    string
	courseDir  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("LECTERN_SYNC_TOKEN", "")

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n",
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		"127.0.0.1:0",
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	course := filepath.Join(base, "courses", "Go Basics")
	testsupport.WriteFile(t, filepath.Join(course, "01 Welcome.mp4"), 2048)
	testsupport.WriteFile(t, filepath.Join(course, "02 Types.mp4"), 4096)
	testsupport.WriteFile(t, filepath.Join(course, "10 Wrap up.mp4"), 1024)
	testsupport.WriteFile(t, filepath.Join(course, "notes.mp3"), 64)
	if err := os.WriteFile(filepath.Join(course, "01 Welcome.en.srt"), []byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n"), 0o644); err != nil {
		t.Fatalf("write captions: %v", err)
	}

	return &cliTestEnv{configPath: configPath, baseDir: base, courseDir: course}
}

// runCLI executes the command tree with write access pre-approved so no
// test ever waits on a terminal prompt.
func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--allow-write"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
