package access_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lectern/internal/access"
	"lectern/internal/logging"
	"lectern/internal/testsupport"
)

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) PickDirectory(ctx context.Context, mode access.Mode) (string, error) {
	args := m.Called(ctx, mode)
	return args.String(0), args.Error(1)
}

func (m *mockPrompter) ConfirmPermission(ctx context.Context, folderName string, mode access.Mode) (bool, error) {
	args := m.Called(ctx, folderName, mode)
	return args.Bool(0), args.Error(1)
}

type brokerFixture struct {
	refs     *access.Store
	perms    *access.Permissions
	prompter *mockPrompter
	broker   *access.Broker
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	t.Helper()
	db := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	refs := access.NewStore(db)
	prompter := &mockPrompter{}
	perms := access.NewPermissions(refs, prompter, logging.NewNop())
	return &brokerFixture{
		refs:     refs,
		perms:    perms,
		prompter: prompter,
		broker:   access.NewBroker(refs, perms, prompter, logging.NewNop()),
	}
}

func makeCourseDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	testsupport.WriteFile(t, filepath.Join(dir, "01 Intro.mp4"), 16)
	return dir
}

func TestAcquireAccessPicksWhenNoReference(t *testing.T) {
	f := newBrokerFixture(t)
	dir := makeCourseDir(t, "React Course")
	f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return(dir, nil).Once()

	grant, err := f.broker.AcquireAccess(context.Background())
	require.NoError(t, err)
	require.NotNil(t, grant)
	defer grant.Handle.Close()

	assert.False(t, grant.WasCached)
	assert.Equal(t, "React Course", grant.FolderName)

	current, err := f.refs.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, dir, current.Path)
	assert.True(t, current.HasGrant(access.ModeRead))
	f.prompter.AssertExpectations(t)
}

func TestAcquireAccessReusesVerifiedReference(t *testing.T) {
	f := newBrokerFixture(t)
	dir := makeCourseDir(t, "Go")
	require.NoError(t, f.refs.SetCurrent(context.Background(), access.Reference{
		FolderName: "Go", Path: dir, Grants: []access.Mode{access.ModeRead},
	}))

	grant, err := f.broker.AcquireAccess(context.Background())
	require.NoError(t, err)
	require.NotNil(t, grant)
	defer grant.Handle.Close()

	assert.True(t, grant.WasCached)
	f.prompter.AssertNotCalled(t, "PickDirectory", mock.Anything, mock.Anything)
}

func TestAcquireAccessRequestsPromptableReference(t *testing.T) {
	f := newBrokerFixture(t)
	dir := makeCourseDir(t, "Go")
	require.NoError(t, f.refs.SetCurrent(context.Background(), access.Reference{FolderName: "Go", Path: dir}))
	f.prompter.On("ConfirmPermission", mock.Anything, "Go", access.ModeRead).Return(true, nil).Once()

	grant, err := f.broker.AcquireAccess(context.Background())
	require.NoError(t, err)
	require.NotNil(t, grant)
	defer grant.Handle.Close()
	assert.True(t, grant.WasCached)

	current, _ := f.refs.Current(context.Background())
	assert.True(t, current.HasGrant(access.ModeRead), "grant should be persisted")
}

func TestAcquireAccessFallsBackToPickerWhenFolderMoved(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	gone := makeCourseDir(t, "Old")
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "Old", Path: gone, Grants: []access.Mode{access.ModeRead}}))
	require.NoError(t, os.RemoveAll(gone))

	f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return("", access.ErrCancelled).Once()

	grant, err := f.broker.AcquireAccess(ctx)
	require.NoError(t, err)
	assert.Nil(t, grant, "cancellation is a nil grant, not an error")

	current, err := f.refs.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current, "stale reference should be cleared")
	f.prompter.AssertExpectations(t)
}

func TestAcquireAccessDeclinedPermissionOpensPicker(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	first := makeCourseDir(t, "First")
	second := makeCourseDir(t, "Second")
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "First", Path: first}))

	f.prompter.On("ConfirmPermission", mock.Anything, "First", access.ModeRead).Return(false, nil).Once()
	f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return(second, nil).Once()

	grant, err := f.broker.AcquireAccess(ctx)
	require.NoError(t, err)
	require.NotNil(t, grant)
	defer grant.Handle.Close()
	assert.Equal(t, "Second", grant.FolderName)
	assert.False(t, grant.WasCached)
}

func TestForceNewBypassesStoredReference(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	first := makeCourseDir(t, "First")
	second := makeCourseDir(t, "Second")
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "First", Path: first, Grants: []access.Mode{access.ModeRead}}))
	f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return(second, nil).Once()

	grant, err := f.broker.ForceNew(ctx)
	require.NoError(t, err)
	require.NotNil(t, grant)
	defer grant.Handle.Close()
	assert.Equal(t, "Second", grant.FolderName)

	all, err := f.refs.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Second", all[0].FolderName)
}

func TestPickerErrorIsNotFatal(t *testing.T) {
	f := newBrokerFixture(t)
	f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return("", errors.New("dialog crashed")).Once()

	grant, err := f.broker.ForceNew(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, grant)
}

func TestPickedFileIsUnavailable(t *testing.T) {
	f := newBrokerFixture(t)
	dir := makeCourseDir(t, "Course")
	f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return(filepath.Join(dir, "01 Intro.mp4"), nil).Once()

	grant, err := f.broker.ForceNew(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, grant)
}

func TestVerifyDeniedByOS(t *testing.T) {
	f := newBrokerFixture(t)
	dir := makeCourseDir(t, "Locked")
	f.perms.WithChecker(func(string, access.Mode) error { return os.ErrPermission })

	handle, state, err := f.broker.Verify(context.Background(), access.Reference{FolderName: "Locked", Path: dir, Grants: []access.Mode{access.ModeRead}}, access.ModeRead)
	assert.Nil(t, handle)
	assert.Equal(t, access.StateDenied, state)
	assert.ErrorIs(t, err, access.ErrNotGranted)
	f.prompter.AssertNotCalled(t, "ConfirmPermission", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("granted after prompt", func(t *testing.T) {
		f := newBrokerFixture(t)
		dir := makeCourseDir(t, "Writable")
		f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return(dir, nil).Once()
		f.prompter.On("ConfirmPermission", mock.Anything, "Writable", access.ModeReadWrite).Return(true, nil).Once()

		grant, err := f.broker.AcquireAccess(ctx)
		require.NoError(t, err)
		defer grant.Handle.Close()

		assert.True(t, f.broker.EnsureWrite(ctx, grant.Handle))
		// A recorded grant answers later checks without prompting again.
		assert.True(t, f.broker.EnsureWrite(ctx, grant.Handle))
		f.prompter.AssertExpectations(t)
	})

	t.Run("declined", func(t *testing.T) {
		f := newBrokerFixture(t)
		dir := makeCourseDir(t, "ReadOnly")
		f.prompter.On("PickDirectory", mock.Anything, access.ModeRead).Return(dir, nil).Once()
		f.prompter.On("ConfirmPermission", mock.Anything, "ReadOnly", access.ModeReadWrite).Return(false, access.ErrCancelled)

		grant, err := f.broker.AcquireAccess(ctx)
		require.NoError(t, err)
		defer grant.Handle.Close()

		assert.False(t, f.broker.EnsureWrite(ctx, grant.Handle))
		current, _ := f.refs.Current(ctx)
		assert.False(t, current.HasGrant(access.ModeReadWrite))
	})

	t.Run("nil handle", func(t *testing.T) {
		f := newBrokerFixture(t)
		assert.False(t, f.broker.EnsureWrite(ctx, nil))
	})
}

func TestSweepDropsDeadReferences(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	alive := makeCourseDir(t, "Alive")
	dead := makeCourseDir(t, "Dead")
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "Dead", Path: dead, Grants: []access.Mode{access.ModeRead}}))
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "Alive", Path: alive, Grants: []access.Mode{access.ModeRead}}))
	require.NoError(t, os.RemoveAll(dead))

	dropped, err := f.broker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dead"}, dropped)

	all, err := f.refs.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Alive", all[0].FolderName)
}

func TestReopenListedFolder(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	first := makeCourseDir(t, "First")
	second := makeCourseDir(t, "Second")
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "First", Path: first, Grants: []access.Mode{access.ModeRead}}))
	require.NoError(t, f.refs.SetCurrent(ctx, access.Reference{FolderName: "Second", Path: second, Grants: []access.Mode{access.ModeRead}}))

	grant, err := f.broker.Reopen(ctx, "First")
	require.NoError(t, err)
	require.NotNil(t, grant)
	defer grant.Handle.Close()

	current, _ := f.refs.Current(ctx)
	assert.Equal(t, "First", current.FolderName)

	missing, err := f.broker.Reopen(ctx, "Unknown")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHandleProbeDetectsReplacement(t *testing.T) {
	dir := makeCourseDir(t, "Course")
	handle, err := access.OpenHandle(dir)
	require.NoError(t, err)
	defer handle.Close()
	require.NoError(t, handle.Probe())

	require.NoError(t, os.Rename(dir, dir+".moved"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	assert.ErrorIs(t, handle.Probe(), access.ErrUnavailable)
}
