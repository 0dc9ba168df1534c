package metacache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"lectern/internal/logging"
	"lectern/internal/scanner"
	"lectern/internal/store"
)

// Fingerprint identifies one file's content cheaply.
type Fingerprint struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// CachedMetadata is the stored result of a folder's last full scan.
type CachedMetadata struct {
	FolderKey  string        `json:"folderKey"`
	FolderName string        `json:"folderName"`
	FolderPath string        `json:"folderPath"`
	Files      []Fingerprint `json:"files"`
	ScannedAt  time.Time     `json:"scannedAt"`
	// Stale is set when a filesystem watcher saw the folder change.
	Stale bool `json:"stale"`
}

// Cache stores scan fingerprints in the shared database.
type Cache struct {
	db     *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a cache over db.
func New(db *store.Store, logger *slog.Logger) *Cache {
	return &Cache{
		db:     db,
		logger: logging.NewComponentLogger(logger, "metacache"),
		now:    time.Now,
	}
}

// Fingerprints extracts the cacheable part of a scan.
func Fingerprints(videos []scanner.VideoFile) []Fingerprint {
	out := make([]Fingerprint, 0, len(videos))
	for _, v := range videos {
		out = append(out, Fingerprint{Path: v.RelativePath, Size: v.Size, LastModified: v.LastModified})
	}
	return out
}

// Save overwrites the entry for folderKey with the given scan.
func (c *Cache) Save(ctx context.Context, folderKey, folderPath string, videos []scanner.VideoFile) error {
	files, err := json.Marshal(Fingerprints(videos))
	if err != nil {
		return fmt.Errorf("encode fingerprints: %w", err)
	}
	_, err = c.db.Exec(ctx,
		`INSERT INTO metadata_cache (folder_key, folder_name, folder_path, files_json, scanned_at, stale)
         VALUES (?, ?, ?, ?, ?, 0)
         ON CONFLICT(folder_key) DO UPDATE SET
            folder_name = excluded.folder_name,
            folder_path = excluded.folder_path,
            files_json = excluded.files_json,
            scanned_at = excluded.scanned_at,
            stale = 0`,
		folderKey, filepath.Base(folderPath), folderPath, string(files), c.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save metadata cache: %w", err)
	}
	return nil
}

// Load returns the entry for folderKey, or nil when none is stored. An entry
// whose fingerprints no longer decode is treated as absent.
func (c *Cache) Load(ctx context.Context, folderKey string) (*CachedMetadata, error) {
	var (
		meta      CachedMetadata
		filesRaw  string
		scannedAt int64
		stale     int
	)
	err := c.db.QueryRow(ctx,
		`SELECT folder_key, folder_name, folder_path, files_json, scanned_at, stale
         FROM metadata_cache WHERE folder_key = ?`,
		[]any{folderKey},
		&meta.FolderKey, &meta.FolderName, &meta.FolderPath, &filesRaw, &scannedAt, &stale,
	)
	if store.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata cache: %w", err)
	}
	if err := json.Unmarshal([]byte(filesRaw), &meta.Files); err != nil {
		c.logger.Debug("discarding undecodable cache entry",
			logging.String("folder_key", folderKey),
			logging.Error(err),
		)
		return nil, nil
	}
	meta.ScannedAt = time.UnixMilli(scannedAt)
	meta.Stale = stale != 0
	return &meta, nil
}

// IsValid reports whether fresh matches cached exactly: same number of files,
// and the same size and modification time at every path. A stale entry is
// never valid.
func IsValid(cached *CachedMetadata, fresh []scanner.VideoFile) bool {
	if cached == nil || cached.Stale {
		return false
	}
	if len(cached.Files) != len(fresh) {
		return false
	}
	byPath := make(map[string]Fingerprint, len(cached.Files))
	for _, fp := range cached.Files {
		byPath[fp.Path] = fp
	}
	if len(byPath) != len(cached.Files) {
		return false
	}
	for _, v := range fresh {
		fp, ok := byPath[v.RelativePath]
		if !ok || fp.Size != v.Size || fp.LastModified != v.LastModified {
			return false
		}
	}
	return true
}

// Reconcile compares a fresh scan with the stored entry and rewrites the entry
// when it no longer matches. It reports whether the stored entry was valid.
func (c *Cache) Reconcile(ctx context.Context, folderKey, folderPath string, fresh []scanner.VideoFile) (bool, error) {
	cached, err := c.Load(ctx, folderKey)
	if err != nil {
		return false, err
	}
	if IsValid(cached, fresh) {
		c.logger.Debug("metadata cache hit", logging.String("folder_key", folderKey), logging.Int("files", len(fresh)))
		return true, nil
	}
	if err := c.Save(ctx, folderKey, folderPath, fresh); err != nil {
		return false, err
	}
	c.logger.Debug("metadata cache refreshed", logging.String("folder_key", folderKey), logging.Int("files", len(fresh)))
	return false, nil
}

// MarkStale flags an entry so the next comparison rewrites it.
func (c *Cache) MarkStale(ctx context.Context, folderKey string) error {
	if _, err := c.db.Exec(ctx, "UPDATE metadata_cache SET stale = 1 WHERE folder_key = ?", folderKey); err != nil {
		return fmt.Errorf("mark metadata cache stale: %w", err)
	}
	return nil
}

// Clear removes the entry for folderKey, or every entry when folderKey is empty.
// It returns the number of entries removed.
func (c *Cache) Clear(ctx context.Context, folderKey string) (int64, error) {
	query := "DELETE FROM metadata_cache WHERE folder_key = ?"
	args := []any{folderKey}
	if folderKey == "" {
		query = "DELETE FROM metadata_cache"
		args = nil
	}
	res, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear metadata cache: %w", err)
	}
	return res.RowsAffected()
}

// Summary is a listing row without fingerprints.
type Summary struct {
	FolderKey  string    `json:"folderKey"`
	FolderName string    `json:"folderName"`
	FolderPath string    `json:"folderPath"`
	FileCount  int       `json:"fileCount"`
	ScannedAt  time.Time `json:"scannedAt"`
	Stale      bool      `json:"stale"`
}

// List returns every entry, most recently scanned first.
func (c *Cache) List(ctx context.Context) ([]Summary, error) {
	rows, err := c.db.Query(ctx,
		`SELECT folder_key, folder_name, folder_path, json_array_length(files_json), scanned_at, stale
         FROM metadata_cache ORDER BY scanned_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list metadata cache: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s         Summary
			scannedAt int64
			stale     int
		)
		if err := rows.Scan(&s.FolderKey, &s.FolderName, &s.FolderPath, &s.FileCount, &scannedAt, &stale); err != nil {
			return nil, fmt.Errorf("scan metadata cache row: %w", err)
		}
		s.ScannedAt = time.UnixMilli(scannedAt)
		s.Stale = stale != 0
		out = append(out, s)
	}
	return out, rows.Err()
}
