package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Health describes the database file for `lectern status`.
type Health struct {
	Path          string         `json:"path"`
	Exists        bool           `json:"exists"`
	Readable      bool           `json:"readable"`
	SizeBytes     int64          `json:"sizeBytes"`
	SchemaVersion int            `json:"schemaVersion"`
	JournalMode   string         `json:"journalMode,omitempty"`
	Rows          map[string]int `json:"rows,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// CheckHealth pings the database and counts the rows of every table. The
// returned Health is filled as far as the checks got, even on error.
func (s *Store) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{Path: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.Exists = true
	health.SizeBytes = info.Size()

	checkCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	fail := func(step string, err error) (Health, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", step, err)
	}
	if err := s.db.PingContext(checkCtx); err != nil {
		return fail("ping database", err)
	}
	health.Readable = true

	if err := s.QueryRow(checkCtx, "SELECT version FROM schema_version LIMIT 1", nil, &health.SchemaVersion); err != nil {
		return fail("read schema version", err)
	}
	if err := s.QueryRow(checkCtx, "PRAGMA journal_mode", nil, &health.JournalMode); err != nil {
		return fail("read journal mode", err)
	}

	health.Rows = make(map[string]int, len(Tables))
	for _, table := range Tables {
		var count int
		if err := s.QueryRow(checkCtx, "SELECT COUNT(1) FROM "+table, nil, &count); err != nil {
			return fail("count "+table, err)
		}
		health.Rows[table] = count
	}
	return health, nil
}
