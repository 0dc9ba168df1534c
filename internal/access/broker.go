package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"lectern/internal/logging"
)

// Grant is a verified, live folder handle.
type Grant struct {
	Handle     *Handle
	FolderName string
	// WasCached reports that the handle came from the stored current
	// reference rather than a fresh picker interaction.
	WasCached bool
}

// Broker turns persisted references into live handles, falling back to the
// interactive picker when verification fails.
type Broker struct {
	refs     *Store
	perms    *Permissions
	prompter Prompter
	logger   *slog.Logger
	now      func() time.Time
}

// NewBroker wires the reference store, permission checks, and picker.
func NewBroker(refs *Store, perms *Permissions, prompter Prompter, logger *slog.Logger) *Broker {
	return &Broker{
		refs:     refs,
		perms:    perms,
		prompter: prompter,
		logger:   logging.NewComponentLogger(logger, "access"),
		now:      time.Now,
	}
}

// AcquireAccess returns the verified current folder, or opens the picker when
// there is none or it no longer verifies. A nil Grant with a nil error means
// the user cancelled.
func (b *Broker) AcquireAccess(ctx context.Context) (*Grant, error) {
	current, err := b.refs.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		handle, _, verr := b.Verify(ctx, *current, ModeRead)
		if verr == nil {
			b.logger.Debug("reusing stored folder", logging.Folder(current.FolderName))
			return &Grant{Handle: handle, FolderName: current.FolderName, WasCached: true}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logging.WarnWithContext(b.logger, "stored folder failed verification", "folder_reference_invalid",
			logging.Folder(current.FolderName),
			logging.Error(verr),
			logging.String(logging.FieldErrorHint, "choose the folder again"),
			logging.String(logging.FieldImpact, "falling back to the folder picker"),
		)
		if err := b.refs.ClearCurrent(ctx); err != nil {
			return nil, err
		}
	}
	return b.pick(ctx)
}

// ForceNew always opens the picker, bypassing the stored current reference.
func (b *Broker) ForceNew(ctx context.Context) (*Grant, error) {
	return b.pick(ctx)
}

// Reopen verifies a previously granted folder by name and makes it current.
// A nil Grant means the folder is unknown or no longer verifies.
func (b *Broker) Reopen(ctx context.Context, folderName string) (*Grant, error) {
	ref, err := b.refs.Lookup(ctx, folderName)
	if err != nil || ref == nil {
		return nil, err
	}
	handle, _, verr := b.Verify(ctx, *ref, ModeRead)
	if verr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		b.logger.Info("listed folder failed verification",
			logging.Folder(folderName),
			logging.Error(verr),
		)
		return nil, nil
	}
	updated := handle.Reference()
	updated.SavedAt = b.now().UTC()
	if err := b.refs.SetCurrent(ctx, updated); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return &Grant{Handle: handle, FolderName: folderName, WasCached: true}, nil
}

func (b *Broker) pick(ctx context.Context) (*Grant, error) {
	if b.prompter == nil {
		return nil, nil
	}
	path, err := b.prompter.PickDirectory(ctx, ModeRead)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			b.logger.Info("folder selection cancelled")
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logging.WarnWithContext(b.logger, "folder picker failed", "folder_picker_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no folder opened"),
		)
		return nil, nil
	}

	ref := Reference{
		FolderName: filepath.Base(path),
		Path:       path,
		SavedAt:    b.now().UTC(),
		Grants:     []Mode{ModeRead},
	}
	if b.perms.Query(ref, ModeRead) != StateGranted {
		logging.WarnWithContext(b.logger, "chosen folder is not readable", "folder_permission_denied",
			logging.Folder(ref.FolderName),
			logging.String(logging.FieldErrorHint, "check folder permissions"),
			logging.String(logging.FieldImpact, "no folder opened"),
		)
		return nil, nil
	}
	handle, err := openHandle(ref)
	if err != nil {
		logging.WarnWithContext(b.logger, "chosen folder is unavailable", "folder_unavailable",
			logging.Folder(ref.FolderName),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no folder opened"),
		)
		return nil, nil
	}
	if err := b.refs.SetCurrent(ctx, ref); err != nil {
		_ = handle.Close()
		return nil, err
	}
	b.logger.Info("folder granted",
		logging.Folder(ref.FolderName),
		logging.String("path", ref.Path),
	)
	return &Grant{Handle: handle, FolderName: ref.FolderName, WasCached: false}, nil
}

// Verify upgrades a reference into a live handle: query permission, request it
// when promptable, then probe liveness. A non-nil error means the reference is
// invalid; it wraps ErrNotGranted or ErrUnavailable, or is a context error.
func (b *Broker) Verify(ctx context.Context, ref Reference, mode Mode) (*Handle, State, error) {
	state, err := b.perms.Request(ctx, ref, mode)
	if err != nil {
		return nil, state, err
	}
	if state != StateGranted {
		return nil, state, fmt.Errorf("%w: %s for %s", ErrNotGranted, mode, ref.FolderName)
	}
	// Pick up a grant recorded by the request above.
	ref = ref.withGrant(mode)
	handle, err := openHandle(ref)
	if err != nil {
		return nil, state, err
	}
	return handle, state, nil
}

// EnsureWrite reports whether the handle's folder may be written, requesting
// write permission when it is merely promptable. Absence is not an error.
func (b *Broker) EnsureWrite(ctx context.Context, handle *Handle) bool {
	if handle == nil {
		return false
	}
	ref := handle.Reference()
	if stored, err := b.refs.Lookup(ctx, ref.FolderName); err == nil && stored != nil && stored.Path == ref.Path {
		ref = *stored
	}
	state, err := b.perms.Request(ctx, ref, ModeReadWrite)
	if err != nil {
		b.logger.Debug("write permission request failed", logging.Error(err))
		return false
	}
	if state == StateGranted {
		handle.ref = ref.withGrant(ModeReadWrite)
		return true
	}
	return false
}

// Sweep verifies every listed reference and silently drops the dead ones. It
// only probes permission state without prompting. It returns the dropped names.
func (b *Broker) Sweep(ctx context.Context) ([]string, error) {
	all, err := b.refs.List(ctx)
	if err != nil {
		return nil, err
	}
	var dead []string
	for _, ref := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.perms.Query(ref, ModeRead) == StateDenied {
			dead = append(dead, ref.FolderName)
			continue
		}
		handle, err := openHandle(ref)
		if err != nil {
			dead = append(dead, ref.FolderName)
			continue
		}
		_ = handle.Close()
	}
	if len(dead) == 0 {
		return nil, nil
	}
	if err := b.refs.Prune(ctx, dead); err != nil {
		return nil, err
	}
	b.logger.Debug("pruned unavailable folders", logging.Int("count", len(dead)))
	return dead, nil
}
