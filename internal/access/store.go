package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"lectern/internal/store"
)

const (
	keyCurrent = "current"
	keyAll     = "all"
)

// Store persists the current reference and the list of every granted
// reference (most recent first, unique by folder name).
type Store struct {
	db  *store.Store
	now func() time.Time
}

// NewStore wraps the shared database.
func NewStore(db *store.Store) *Store {
	return &Store{db: db, now: time.Now}
}

// Current returns the current reference, or nil when none is stored.
func (s *Store) Current(ctx context.Context) (*Reference, error) {
	var ref Reference
	found, err := s.load(ctx, s.db.QueryRow, keyCurrent, &ref)
	if err != nil || !found {
		return nil, err
	}
	return &ref, nil
}

// SetCurrent makes ref the current reference and moves it to the front of the
// list, replacing any listed reference with the same folder name.
func (s *Store) SetCurrent(ctx context.Context, ref Reference) error {
	if strings.TrimSpace(ref.FolderName) == "" {
		return fmt.Errorf("set current reference: folder name is required")
	}
	if ref.SavedAt.IsZero() {
		ref.SavedAt = s.now().UTC()
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.save(ctx, tx, keyCurrent, ref); err != nil {
			return err
		}
		var all []Reference
		if _, err := s.load(ctx, txScanner(tx), keyAll, &all); err != nil {
			return err
		}
		all = slices.DeleteFunc(all, func(existing Reference) bool {
			return existing.FolderName == ref.FolderName
		})
		all = append([]Reference{ref}, all...)
		return s.save(ctx, tx, keyAll, all)
	})
}

// ClearCurrent forgets the current reference. The list is untouched.
func (s *Store) ClearCurrent(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM directory_refs WHERE key = ?", keyCurrent); err != nil {
		return fmt.Errorf("clear current reference: %w", err)
	}
	return nil
}

// List returns every granted reference, most recent first.
func (s *Store) List(ctx context.Context) ([]Reference, error) {
	var all []Reference
	if _, err := s.load(ctx, s.db.QueryRow, keyAll, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// Lookup returns the listed reference with the given folder name, or nil.
func (s *Store) Lookup(ctx context.Context, folderName string) (*Reference, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, ref := range all {
		if ref.FolderName == folderName {
			return &ref, nil
		}
	}
	return nil, nil
}

// Remove deletes a reference by folder name, clearing current when it matches.
// It reports whether anything was removed.
func (s *Store) Remove(ctx context.Context, folderName string) (bool, error) {
	removed := false
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		removed = false
		var current Reference
		found, err := s.load(ctx, txScanner(tx), keyCurrent, &current)
		if err != nil {
			return err
		}
		if found && current.FolderName == folderName {
			if _, err := tx.ExecContext(ctx, "DELETE FROM directory_refs WHERE key = ?", keyCurrent); err != nil {
				return fmt.Errorf("remove current reference: %w", err)
			}
			removed = true
		}
		var all []Reference
		if _, err := s.load(ctx, txScanner(tx), keyAll, &all); err != nil {
			return err
		}
		before := len(all)
		all = slices.DeleteFunc(all, func(ref Reference) bool { return ref.FolderName == folderName })
		if len(all) != before {
			removed = true
			return s.save(ctx, tx, keyAll, all)
		}
		return nil
	})
	return removed, err
}

// Prune drops the named references from the list. Used by the liveness sweep.
func (s *Store) Prune(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var all []Reference
		if _, err := s.load(ctx, txScanner(tx), keyAll, &all); err != nil {
			return err
		}
		all = slices.DeleteFunc(all, func(ref Reference) bool { return slices.Contains(names, ref.FolderName) })
		return s.save(ctx, tx, keyAll, all)
	})
}

// RecordGrant stores a user permission grant on both the current record and
// the listed reference with that folder name.
func (s *Store) RecordGrant(ctx context.Context, folderName string, mode Mode) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var current Reference
		found, err := s.load(ctx, txScanner(tx), keyCurrent, &current)
		if err != nil {
			return err
		}
		if found && current.FolderName == folderName {
			if err := s.save(ctx, tx, keyCurrent, current.withGrant(mode)); err != nil {
				return err
			}
		}
		var all []Reference
		if _, err := s.load(ctx, txScanner(tx), keyAll, &all); err != nil {
			return err
		}
		for i := range all {
			if all[i].FolderName == folderName {
				all[i] = all[i].withGrant(mode)
			}
		}
		return s.save(ctx, tx, keyAll, all)
	})
}

// rowScanner matches store.Store.QueryRow so reads share one code path inside
// and outside transactions.
type rowScanner func(ctx context.Context, query string, args []any, dest ...any) error

func txScanner(tx *sql.Tx) rowScanner {
	return func(ctx context.Context, query string, args []any, dest ...any) error {
		return tx.QueryRowContext(ctx, query, args...).Scan(dest...)
	}
}

func (s *Store) load(ctx context.Context, scan rowScanner, key string, dest any) (bool, error) {
	var raw string
	err := scan(ctx, "SELECT value_json FROM directory_refs WHERE key = ?", []any{key}, &raw)
	if store.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s reference: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s reference: %w", key, err)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, tx *sql.Tx, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s reference: %w", key, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO directory_refs (key, value_json, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`,
		key, string(payload), store.FormatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save %s reference: %w", key, err)
	}
	return nil
}
