package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScanner()
	c.normalizeProgress()
	c.normalizeSubtitles()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeScanner() {
	c.Scanner.VideoExtensions = normalizeExtensions(c.Scanner.VideoExtensions, DefaultVideoExtensions)
	c.Scanner.AudioExtensions = normalizeExtensions(c.Scanner.AudioExtensions, DefaultAudioExtensions)
	if c.Scanner.YieldEveryFiles <= 0 {
		c.Scanner.YieldEveryFiles = defaultYieldEveryFiles
	}
	if c.Scanner.YieldEveryFolders <= 0 {
		c.Scanner.YieldEveryFolders = defaultYieldEveryFolders
	}
}

// normalizeExtensions lowercases entries, adds the leading dot, and drops duplicates.
// An empty result falls back to the supplied defaults.
func normalizeExtensions(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, exists := seen[ext]; exists {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func (c *Config) normalizeProgress() {
	if c.Progress.CompletionThreshold == 0 {
		c.Progress.CompletionThreshold = defaultCompletionThreshold
	}
	if c.Progress.FileThrottleSeconds < 0 {
		c.Progress.FileThrottleSeconds = 0
	}
	c.Progress.SidecarName = strings.TrimSpace(c.Progress.SidecarName)
	if c.Progress.SidecarName == "" {
		c.Progress.SidecarName = defaultSidecarName
	}
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Subtitles.DefaultLanguage))
	if c.Subtitles.DefaultLanguage == "" {
		c.Subtitles.DefaultLanguage = defaultSubtitleLanguage
	}
}

func (c *Config) normalizeSync() {
	c.Sync.BaseURL = strings.TrimRight(strings.TrimSpace(c.Sync.BaseURL), "/")
	c.Sync.Token = strings.TrimSpace(c.Sync.Token)
	if c.Sync.Token == "" {
		if value, ok := os.LookupEnv("LECTERN_SYNC_TOKEN"); ok {
			c.Sync.Token = strings.TrimSpace(value)
		}
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = defaultSyncTimeoutSeconds
	}
	if c.Sync.IntervalSeconds <= 0 {
		c.Sync.IntervalSeconds = defaultSyncIntervalSeconds
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = defaultSyncBatchSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
