package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"runtime"
	"slices"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/logging"
)

// ErrRootUnreadable is returned when the folder root itself cannot be listed.
var ErrRootUnreadable = errors.New("scanner: folder root unreadable")

// VideoFile is one playable lecture found in a course folder. RelativePath is
// its identity within the folder and uses forward slashes.
type VideoFile struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	RelativePath string `json:"relativePath"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// ModTime returns LastModified as a time.
func (v VideoFile) ModTime() time.Time {
	return time.UnixMilli(v.LastModified)
}

// Progress is reported after every accepted file.
type Progress struct {
	Count          int
	Path           string
	FoldersScanned int
	FoldersQueued  int
}

// ProgressFunc receives scan progress. It runs on the scanning goroutine.
type ProgressFunc func(Progress)

// Options configures a Scanner.
type Options struct {
	VideoExtensions   []string
	AudioExtensions   []string
	YieldEveryFiles   int
	YieldEveryFolders int
	Logger            *slog.Logger
}

// Scanner walks course folders.
type Scanner struct {
	video             map[string]struct{}
	audio             map[string]struct{}
	yieldEveryFiles   int
	yieldEveryFolders int
	logger            *slog.Logger
	yield             func()
}

// New constructs a scanner. Empty extension lists fall back to the defaults.
func New(opts Options) *Scanner {
	if len(opts.VideoExtensions) == 0 {
		opts.VideoExtensions = config.DefaultVideoExtensions
	}
	if len(opts.AudioExtensions) == 0 {
		opts.AudioExtensions = config.DefaultAudioExtensions
	}
	if opts.YieldEveryFiles <= 0 {
		opts.YieldEveryFiles = 50
	}
	if opts.YieldEveryFolders <= 0 {
		opts.YieldEveryFolders = 10
	}
	return &Scanner{
		video:             extensionSet(opts.VideoExtensions),
		audio:             extensionSet(opts.AudioExtensions),
		yieldEveryFiles:   opts.YieldEveryFiles,
		yieldEveryFolders: opts.YieldEveryFolders,
		logger:            logging.NewComponentLogger(opts.Logger, "scanner"),
		yield:             runtime.Gosched,
	}
}

// FromConfig builds a scanner from the [scanner] config section.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Scanner {
	return New(Options{
		VideoExtensions:   cfg.Scanner.VideoExtensions,
		AudioExtensions:   cfg.Scanner.AudioExtensions,
		YieldEveryFiles:   cfg.Scanner.YieldEveryFiles,
		YieldEveryFolders: cfg.Scanner.YieldEveryFolders,
		Logger:            logger,
	})
}

func extensionSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, ext := range values {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// IsVideo reports whether name has an accepted video extension. The audio
// denylist wins over the video allowlist.
func (s *Scanner) IsVideo(name string) bool {
	_, ok := s.mediaExt(name)
	return ok
}

func (s *Scanner) mediaExt(name string) (string, bool) {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return "", false
	}
	if _, denied := s.audio[ext]; denied {
		return "", false
	}
	_, ok := s.video[ext]
	return ext, ok
}

// Scan walks fsys breadth-first and returns its lectures in natural order.
// Hidden entries and symlinked directories are skipped. Unreadable folders
// and files are logged and skipped; only an unreadable root or context
// cancellation stops the scan.
func (s *Scanner) Scan(ctx context.Context, fsys fs.FS, onProgress ProgressFunc) ([]VideoFile, error) {
	started := time.Now()
	queue := []string{"."}
	visited := map[string]struct{}{".": {}}
	var (
		videos         []VideoFile
		foldersScanned int
		skipped        int
	)
	sampler := logging.NewProgressSampler(100)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			if dir == "." {
				return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
			}
			skipped++
			logging.WarnWithContext(s.logger, "folder unreadable, skipping", "scan_folder_skipped",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "lectures in this folder are not listed"),
			)
			foldersScanned++
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			rel := joinRel(dir, name)

			if entry.IsDir() {
				if _, seen := visited[rel]; !seen {
					visited[rel] = struct{}{}
					queue = append(queue, rel)
				}
				continue
			}

			ext, ok := s.mediaExt(name)
			if !ok {
				continue
			}
			info, err := fileInfo(fsys, entry, rel)
			if err != nil {
				skipped++
				s.logger.Debug("file unreadable, skipping", logging.String("path", rel), logging.Error(err))
				continue
			}
			if info.IsDir() {
				// Symlinked directory; not followed.
				continue
			}

			videos = append(videos, VideoFile{
				Name:         name,
				DisplayName:  cleanStem(name[:len(name)-len(ext)], name),
				RelativePath: rel,
				Size:         info.Size(),
				LastModified: info.ModTime().UnixMilli(),
			})
			if onProgress != nil {
				onProgress(Progress{
					Count:          len(videos),
					Path:           rel,
					FoldersScanned: foldersScanned,
					FoldersQueued:  len(queue),
				})
			}
			if sampler.ShouldLog(len(videos), dir) {
				s.logger.Debug("scan progress", logging.Int("files", len(videos)), logging.String("folder", dir))
			}
			if len(videos)%s.yieldEveryFiles == 0 {
				if err := s.pause(ctx); err != nil {
					return nil, err
				}
			}
		}

		foldersScanned++
		if foldersScanned%s.yieldEveryFolders == 0 {
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}
	}

	SortVideos(videos)
	s.logger.Info("scan complete",
		logging.Int("files", len(videos)),
		logging.Int("folders", foldersScanned),
		logging.Int("skipped", skipped),
		logging.Duration("elapsed", time.Since(started)),
	)
	return videos, nil
}

func (s *Scanner) pause(ctx context.Context) error {
	s.yield()
	return ctx.Err()
}

func fileInfo(fsys fs.FS, entry fs.DirEntry, rel string) (fs.FileInfo, error) {
	if entry.Type()&fs.ModeSymlink != 0 {
		return fs.Stat(fsys, rel)
	}
	info, err := entry.Info()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", rel)
	}
	return info, nil
}

func joinRel(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return dir + "/" + name
}

// SortVideos orders videos naturally by relative path, then by file name.
func SortVideos(videos []VideoFile) {
	slices.SortStableFunc(videos, func(a, b VideoFile) int {
		if c := CompareNatural(a.RelativePath, b.RelativePath); c != 0 {
			return c
		}
		return CompareNatural(a.Name, b.Name)
	})
}
