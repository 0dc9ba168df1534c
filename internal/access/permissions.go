package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"lectern/internal/logging"
)

// OSChecker reports whether the operating system allows mode on path.
type OSChecker func(path string, mode Mode) error

// unixChecker asks the kernel whether the current user may list (and
// optionally modify) the folder.
func unixChecker(path string, mode Mode) error {
	bits := uint32(unix.R_OK | unix.X_OK)
	if mode == ModeReadWrite {
		bits |= unix.W_OK
	}
	return unix.Access(path, bits)
}

// Permissions answers query/request permission calls for references.
//
// An OS-level refusal is StateDenied. A folder the OS allows but the user has
// not yet granted for the mode is StatePrompt. A persisted grant is StateGranted.
type Permissions struct {
	refs     *Store
	prompter Prompter
	check    OSChecker
	logger   *slog.Logger
}

// NewPermissions constructs a permission checker backed by the reference store.
func NewPermissions(refs *Store, prompter Prompter, logger *slog.Logger) *Permissions {
	return &Permissions{
		refs:     refs,
		prompter: prompter,
		check:    unixChecker,
		logger:   logging.NewComponentLogger(logger, "permissions"),
	}
}

// WithChecker overrides the OS permission probe.
func (p *Permissions) WithChecker(check OSChecker) *Permissions {
	if check != nil {
		p.check = check
	}
	return p
}

// Query returns the current permission state without prompting.
func (p *Permissions) Query(ref Reference, mode Mode) State {
	if err := p.check(ref.Path, mode); err != nil {
		p.logger.Debug("os refused folder access",
			logging.Folder(ref.FolderName),
			logging.String("mode", string(mode)),
			logging.Error(err),
		)
		return StateDenied
	}
	if ref.HasGrant(mode) {
		return StateGranted
	}
	return StatePrompt
}

// Request asks the user for mode when the state is promptable, recording the
// grant on approval. The returned state is never StatePrompt. Only storage
// failures and context cancellation are returned as errors.
func (p *Permissions) Request(ctx context.Context, ref Reference, mode Mode) (State, error) {
	state := p.Query(ref, mode)
	if state != StatePrompt {
		return state, nil
	}
	if p.prompter == nil {
		return StateDenied, nil
	}
	approved, err := p.prompter.ConfirmPermission(ctx, ref.FolderName, mode)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return StateDenied, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateDenied, ctxErr
		}
		logging.WarnWithContext(p.logger, "permission prompt failed", "permission_prompt_failed",
			logging.Folder(ref.FolderName),
			logging.String("mode", string(mode)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "folder treated as not granted"),
		)
		return StateDenied, nil
	}
	if !approved {
		return StateDenied, nil
	}
	if err := p.refs.RecordGrant(ctx, ref.FolderName, mode); err != nil {
		return StateDenied, fmt.Errorf("record %s grant: %w", mode, err)
	}
	return StateGranted, nil
}
