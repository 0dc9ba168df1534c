package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if !strings.Contains(c.Paths.APIBind, ":") {
		return fmt.Errorf("paths.api_bind %q must be host:port", c.Paths.APIBind)
	}
	return nil
}

func (c *Config) validateScanner() error {
	audio := make(map[string]struct{}, len(c.Scanner.AudioExtensions))
	for _, ext := range c.Scanner.AudioExtensions {
		audio[ext] = struct{}{}
	}
	for _, ext := range c.Scanner.VideoExtensions {
		if _, clash := audio[ext]; !clash {
			return nil
		}
	}
	return errors.New("scanner.video_extensions must contain at least one extension not listed in scanner.audio_extensions")
}

func (c *Config) validateProgress() error {
	if c.Progress.CompletionThreshold <= 0 || c.Progress.CompletionThreshold > 100 {
		return errors.New("progress.completion_threshold must be between 0 (exclusive) and 100")
	}
	if strings.ContainsAny(c.Progress.SidecarName, `/\`) {
		return fmt.Errorf("progress.sidecar_name %q must be a plain file name", c.Progress.SidecarName)
	}
	return nil
}

func (c *Config) validateSync() error {
	if !c.Sync.Enabled {
		return nil
	}
	if c.Sync.BaseURL == "" {
		return errors.New("sync.base_url must be set when sync.enabled is true")
	}
	parsed, err := url.Parse(c.Sync.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("sync.base_url %q must be an absolute URL", c.Sync.BaseURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}
