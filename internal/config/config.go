package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Scanner controls which files count as playable media and how often a long
// folder walk yields to other goroutines.
type Scanner struct {
	VideoExtensions   []string `toml:"video_extensions"`
	AudioExtensions   []string `toml:"audio_extensions"`
	YieldEveryFiles   int      `toml:"yield_every_files"`
	YieldEveryFolders int      `toml:"yield_every_folders"`
}

// Progress contains configuration for watch progress persistence.
type Progress struct {
	// CompletionThreshold is the percent at or above which a lecture counts as completed.
	CompletionThreshold float64 `toml:"completion_threshold"`
	// FileThrottleSeconds rate-limits portable progress file writes per course.
	FileThrottleSeconds int `toml:"file_throttle_seconds"`
	// SidecarName is the portable progress file written at the folder root.
	SidecarName string `toml:"sidecar_name"`
}

// Subtitles contains configuration for caption track discovery.
type Subtitles struct {
	DefaultLanguage string `toml:"default_language"`
}

// Sync contains configuration for the remote progress outbox. Disabled by default.
type Sync struct {
	Enabled         bool   `toml:"enabled"`
	BaseURL         string `toml:"base_url"`
	Token           string `toml:"token"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IntervalSeconds int    `toml:"interval_seconds"`
	BatchSize       int    `toml:"batch_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lectern.
//
// Configuration sections by subsystem:
//   - Paths: data directory (database, lock), log directory, API bind address
//   - Scanner: media extension lists and cooperative yield cadence
//   - Progress: completion threshold and portable file throttling
//   - Subtitles: preferred caption language
//   - Sync: dormant remote progress sync
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Scanner   Scanner   `toml:"scanner"`
	Progress  Progress  `toml:"progress"`
	Subtitles Subtitles `toml:"subtitles"`
	Sync      Sync      `toml:"sync"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lectern/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lectern.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "lectern.db")
}

// LockPath returns the single-instance lock file used by the player server.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "lectern.lock")
}

// LogPath returns the log file written next to console output.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "lectern.log")
}

// FileThrottle returns the portable progress file write interval.
func (c *Config) FileThrottle() time.Duration {
	return time.Duration(c.Progress.FileThrottleSeconds) * time.Second
}

// SyncTimeout returns the per-request timeout for the remote sync endpoint.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}

// SyncInterval returns the interval between remote sync attempts.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
