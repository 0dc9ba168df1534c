package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lectern/internal/access"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/player"
	"lectern/internal/store"
)

type commandContext struct {
	configFlag *string
	allowWrite *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, allowWrite *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		allowWrite: allowWrite,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// prompter answers folder and permission prompts for one-shot commands.
func (c *commandContext) prompter() access.Prompter {
	if c.allowWrite != nil && *c.allowWrite {
		return access.FixedPrompter{AllowWrite: true}
	}
	return access.NewTerminalPrompter()
}

// serverPrompter never reads the server's stdin. Folders and write grants
// come from API requests; --allow-write approves writes for every folder.
func (c *commandContext) serverPrompter() access.Prompter {
	return access.FixedPrompter{AllowWrite: c.allowWrite != nil && *c.allowWrite}
}

// fileLogger writes to the log file only so command output stays clean.
func (c *commandContext) fileLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{cfg.LogPath()},
	})
}

// session is an open database plus the player service over it.
type session struct {
	cfg    *config.Config
	db     *store.Store
	svc    *player.Service
	logger *slog.Logger
}

// openSession opens the database and a player service. One-shot commands
// pass a nil logger and get the file logger without a folder watcher. A nil
// prompter means the terminal one.
func (c *commandContext) openSession(logger *slog.Logger, prompter access.Prompter, opts ...player.Option) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger, err = c.fileLogger(cfg)
		if err != nil {
			return nil, err
		}
		opts = append([]player.Option{player.WithoutWatcher()}, opts...)
	}
	db, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if prompter == nil {
		prompter = c.prompter()
	}
	svc := player.New(cfg, db, prompter, logger, opts...)
	return &session{cfg: cfg, db: db, svc: svc, logger: logger}, nil
}

func (c *commandContext) withSession(fn func(*session) error) error {
	s, err := c.openSession(nil, nil)
	if err != nil {
		return err
	}
	defer s.close(context.Background())
	return fn(s)
}

func (s *session) close(ctx context.Context) {
	_ = s.svc.Close(ctx)
	_ = s.db.Close()
}

// openCourse opens folderName, or the current folder when it is empty.
func (s *session) openCourse(ctx context.Context, folderName string) (player.FolderState, error) {
	state, err := s.svc.OpenFolder(ctx, player.OpenRequest{FolderName: strings.TrimSpace(folderName)})
	if err != nil {
		return state, err
	}
	switch state.Status {
	case player.FolderReady:
		return state, nil
	case player.FolderUnavailable:
		if folderName != "" {
			return state, fmt.Errorf("folder %q is unavailable; open it again with `lectern folder open <path>`", folderName)
		}
		return state, errors.New("course folder is unavailable; open it again with `lectern folder open <path>`")
	default:
		return state, errors.New("no course folder open; run `lectern folder open <path>` first")
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
