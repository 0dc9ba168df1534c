// Package watch notices changes inside an open course folder so a cached scan
// is not trusted after files were added, removed, or rewritten.
package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lectern/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Relevant filters file names worth reacting to. Nil accepts every
	// non-hidden file.
	Relevant func(name string) bool
	// OnChange runs once per burst of relevant events.
	OnChange func()
	// Debounce is the quiet period that ends a burst.
	Debounce time.Duration
}

// Watcher watches a folder tree, skipping hidden directories.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	opts     Options
	logger   *slog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	mu       sync.Mutex
	watching map[string]struct{}
}

// New starts watching root and every non-hidden subdirectory.
func New(root string, opts Options, logger *slog.Logger) (*Watcher, error) {
	if opts.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		root:     filepath.Clean(root),
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "watch"),
		stop:     make(chan struct{}),
		watching: make(map[string]struct{}),
	}
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.add(path)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watching[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		if dir == w.root {
			return err
		}
		w.logger.Debug("skip unwatchable folder", logging.String("dir", dir), logging.Error(err))
		return nil
	}
	w.watching[dir] = struct{}{}
	return nil
}

func (w *Watcher) forget(dir string) {
	w.mu.Lock()
	delete(w.watching, dir)
	w.mu.Unlock()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-w.stop:
			timer.Stop()
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handle(evt) {
				pending = true
				timer.Reset(w.opts.Debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", logging.Error(err))
		case <-timer.C:
			if pending {
				pending = false
				w.opts.OnChange()
			}
		}
	}
}

// handle reacts to one event and reports whether it counts as a change.
func (w *Watcher) handle(evt fsnotify.Event) bool {
	path := filepath.Clean(evt.Name)
	name := filepath.Base(path)
	if isHidden(name) {
		return false
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			_ = w.addTree(path)
			return true
		}
	}
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		w.mu.Lock()
		_, wasDir := w.watching[path]
		w.mu.Unlock()
		if wasDir {
			w.forget(path)
			return true
		}
	}
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Remove) && !evt.Has(fsnotify.Rename) {
		return false
	}
	if w.opts.Relevant != nil && !w.opts.Relevant(name) {
		return false
	}
	return true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
