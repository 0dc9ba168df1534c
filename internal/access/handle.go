package access

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Handle is a live, capability-scoped view of a granted folder. All file
// access for a course flows through it so nothing escapes the folder root.
type Handle struct {
	root *os.Root
	path string
	name string
	ref  Reference
}

func openHandle(ref Reference) (*Handle, error) {
	root, err := os.OpenRoot(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	h := &Handle{root: root, path: ref.Path, name: ref.FolderName, ref: ref}
	if err := h.Probe(); err != nil {
		_ = root.Close()
		return nil, err
	}
	return h, nil
}

// OpenHandle opens a handle for a folder without consulting the reference
// store. It is used by tooling that already holds a trusted path.
func OpenHandle(path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve folder path: %w", err)
	}
	return openHandle(Reference{FolderName: filepath.Base(abs), Path: abs})
}

// Name returns the folder's display name.
func (h *Handle) Name() string { return h.name }

// Path returns the absolute folder location.
func (h *Handle) Path() string { return h.path }

// Reference returns the reference this handle was upgraded from.
func (h *Handle) Reference() Reference { return h.ref }

// FS exposes the folder as a read-only file system.
func (h *Handle) FS() fs.FS { return h.root.FS() }

// Root exposes the scoped root for writes.
func (h *Handle) Root() *os.Root { return h.root }

// Probe enumerates the folder's immediate entries and confirms the folder is
// still reachable at its original path. Any failure means the folder moved,
// was deleted, or became unreadable.
func (h *Handle) Probe() error {
	if _, err := fs.ReadDir(h.root.FS(), "."); err != nil {
		return fmt.Errorf("%w: enumerate %s: %v", ErrUnavailable, h.name, err)
	}
	rootInfo, err := h.root.Stat(".")
	if err != nil {
		return fmt.Errorf("%w: stat root %s: %v", ErrUnavailable, h.name, err)
	}
	pathInfo, err := os.Stat(h.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !os.SameFile(rootInfo, pathInfo) {
		return fmt.Errorf("%w: %s no longer points at the granted folder", ErrUnavailable, h.path)
	}
	return nil
}

// Close releases the folder root.
func (h *Handle) Close() error {
	if h == nil || h.root == nil {
		return nil
	}
	return h.root.Close()
}
