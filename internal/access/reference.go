package access

import (
	"errors"
	"slices"
	"time"
)

// Mode is the access level requested for a folder.
type Mode string

const (
	ModeRead      Mode = "read"
	ModeReadWrite Mode = "readwrite"
)

// State is the permission state for a folder and mode.
type State string

const (
	StateGranted State = "granted"
	StateDenied  State = "denied"
	StatePrompt  State = "prompt"
)

// ErrCancelled is returned by a Prompter when the user dismisses the picker or
// a permission prompt.
var ErrCancelled = errors.New("access: cancelled by user")

// ErrUnavailable marks a reference whose folder was moved, deleted, or can no
// longer be enumerated.
var ErrUnavailable = errors.New("access: folder unavailable")

// ErrNotGranted marks a reference whose permission could not be obtained.
var ErrNotGranted = errors.New("access: permission not granted")

// Reference is a persisted pointer to a user-granted folder root. Path is an
// opaque token to everything outside this package.
type Reference struct {
	FolderName string    `json:"folderName"`
	Path       string    `json:"path"`
	SavedAt    time.Time `json:"savedAt"`
	Grants     []Mode    `json:"grants,omitempty"`
}

// HasGrant reports whether the user granted mode for this reference.
// A read-write grant covers read.
func (r Reference) HasGrant(mode Mode) bool {
	if slices.Contains(r.Grants, ModeReadWrite) {
		return true
	}
	return slices.Contains(r.Grants, mode)
}

func (r Reference) withGrant(mode Mode) Reference {
	if r.HasGrant(mode) {
		return r
	}
	grants := append([]Mode(nil), r.Grants...)
	r.Grants = append(grants, mode)
	return r
}
