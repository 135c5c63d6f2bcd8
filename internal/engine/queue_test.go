package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensync/syncd/internal/pathnorm"
	"github.com/opensync/syncd/internal/remoteapi"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{Initial: time.Millisecond, Ceiling: 10 * time.Millisecond, MaxTries: 3}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestQueue(t *testing.T) (*Queue, *remoteapi.Fake, Snapshot, string) {
	t.Helper()

	root := t.TempDir()
	fake := remoteapi.NewFake()
	snap := NewMemSnapshot()
	intents := make(chan Intent, 16)

	q := NewQueue(root, "proj", fake, snap, testRetryConfig(), intents, discardLogger())

	return q, fake, snap, root
}

func TestQueue_LocalCreateFileCommitsAndUpdatesSnapshot(t *testing.T) {
	q, fake, snap, root := newTestQueue(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644))

	intent := Intent{Kind: CreateFile, Direction: LocalToRemote, Path: pathnorm.New("hello.txt", false), CreatedAt: time.Now()}

	var notifications []Notification
	q.Notify = func(n Notification) { notifications = append(notifications, n) }

	require.NoError(t, q.execute(context.Background(), intent))

	node, ok, err := snap.Get(context.Background(), pathnorm.New("hello.txt", false))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, node.Hash)

	require.Len(t, fake.Calls, 1)
	assert.Equal(t, "Upload", fake.Calls[0].Method)
}

func TestQueue_RemoteCreateFileWritesLocallyAndSnapshot(t *testing.T) {
	q, fake, snap, root := newTestQueue(t)

	fake.Seed(remoteapi.Entry{ID: "r1", Path: "doc.txt", Kind: remoteapi.EntryFile, Hash: "abc"}, []byte("remote content"))

	intent := Intent{Kind: CreateFile, Direction: RemoteToLocal, Path: pathnorm.New("doc.txt", false), Hash: "abc", CreatedAt: time.Now()}
	require.NoError(t, snap.Put(context.Background(), Node{ID: "r1", Path: pathnorm.New("doc.txt", false), Kind: NodeFile}))

	require.NoError(t, q.execute(context.Background(), intent))

	data, err := os.ReadFile(filepath.Join(root, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(data))

	node, ok, err := snap.Get(context.Background(), pathnorm.New("doc.txt", false))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", node.Hash)
}

func TestQueue_DeleteFolderRemovesDescendantsFromSnapshot(t *testing.T) {
	q, _, snap, root := newTestQueue(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj"), 0o755))

	ctx := context.Background()
	require.NoError(t, snap.Put(ctx, Node{ID: "f1", Path: pathnorm.New("proj", true), Kind: NodeFolder}))
	require.NoError(t, snap.Put(ctx, Node{ID: "f2", Path: pathnorm.New("proj/a.txt", false), Kind: NodeFile}))

	intent := Intent{Kind: DeleteFolder, Direction: RemoteToLocal, Path: pathnorm.New("proj", true), CreatedAt: time.Now()}
	require.NoError(t, q.execute(ctx, intent))

	_, ok, err := snap.Get(ctx, pathnorm.New("proj/a.txt", false))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = os.Stat(filepath.Join(root, "proj"))
	assert.True(t, os.IsNotExist(err))
}

func TestQueue_MoveFileUpdatesSnapshotPath(t *testing.T) {
	q, fake, snap, root := newTestQueue(t)

	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("x"), 0o644))
	fake.Seed(remoteapi.Entry{ID: "m1", Path: "old.txt", Kind: remoteapi.EntryFile}, []byte("x"))
	require.NoError(t, snap.Put(ctx, Node{ID: "m1", Path: pathnorm.New("old.txt", false), Kind: NodeFile}))

	intent := Intent{
		Kind: MoveFile, Direction: LocalToRemote,
		Path: pathnorm.New("old.txt", false), DestPath: pathnorm.New("new.txt", false),
		CreatedAt: time.Now(),
	}

	require.NoError(t, q.execute(ctx, intent))

	_, known, err := snap.Get(ctx, pathnorm.New("old.txt", false))
	require.NoError(t, err)
	assert.False(t, known)

	node, known, err := snap.Get(ctx, pathnorm.New("new.txt", false))
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "m1", node.ID)
}

func TestQueue_TransientRemoteErrorRetriesThenSucceeds(t *testing.T) {
	q, _, snap, root := newTestQueue(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "flaky.txt"), []byte("data"), 0o644))

	attempts := 0
	flaky := &flakyClient{
		Fake:  NewQueueFakeClient(t),
		fail:  2,
		count: &attempts,
	}
	q.client = flaky

	intent := Intent{Kind: CreateFile, Direction: LocalToRemote, Path: pathnorm.New("flaky.txt", false), CreatedAt: time.Now()}

	var notifications []Notification
	q.Notify = func(n Notification) { notifications = append(notifications, n) }

	q.process(context.Background(), intent)

	require.Len(t, notifications, 1)
	assert.Equal(t, NotificationCommitted, notifications[0].Kind)
	assert.Equal(t, 3, attempts)

	_, ok, err := snap.Get(context.Background(), pathnorm.New("flaky.txt", false))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueue_PermanentErrorDropsIntentAndNotifies(t *testing.T) {
	q, _, _, root := newTestQueue(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "denied.txt"), []byte("x"), 0o644))

	q.client = &permanentFailClient{Fake: NewQueueFakeClient(t)}

	var notifications []Notification
	q.Notify = func(n Notification) { notifications = append(notifications, n) }

	intent := Intent{Kind: CreateFile, Direction: LocalToRemote, Path: pathnorm.New("denied.txt", false), CreatedAt: time.Now()}
	q.process(context.Background(), intent)

	require.Len(t, notifications, 1)
	assert.Equal(t, NotificationPermanentError, notifications[0].Kind)
}

func TestQueue_ConflictEscalatesToIntervention(t *testing.T) {
	q, fake, snap, root := newTestQueue(t)

	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "shared.txt"), []byte("local edit"), 0o644))
	fake.Seed(remoteapi.Entry{ID: "s1", Path: "shared.txt", Kind: remoteapi.EntryFile, Hash: "remote-hash"}, []byte("remote edit"))
	require.NoError(t, snap.Put(ctx, Node{ID: "s1", Path: pathnorm.New("shared.txt", false), Kind: NodeFile, Hash: "stale-hash"}))

	var seenConflict Conflict
	q.Intervention = func(c Conflict) Resolution {
		seenConflict = c
		return ResolutionSkip
	}

	var notifications []Notification
	q.Notify = func(n Notification) { notifications = append(notifications, n) }

	intent := Intent{Kind: UpdateFile, Direction: RemoteToLocal, Path: pathnorm.New("shared.txt", false), Hash: "remote-hash", CreatedAt: time.Now()}
	q.process(ctx, intent)

	assert.Equal(t, intent.Path.String(), seenConflict.Intent.Path.String())
	require.Len(t, notifications, 1)
	assert.Equal(t, NotificationConflict, notifications[0].Kind)
}

// --- test doubles -----------------------------------------------------

// NewQueueFakeClient returns a remoteapi.Fake for composition into wrapper
// clients that inject failures on top of otherwise-working behavior.
func NewQueueFakeClient(t *testing.T) *remoteapi.Fake {
	t.Helper()

	return remoteapi.NewFake()
}

type flakyClient struct {
	*remoteapi.Fake
	fail  int
	count *int
}

func (f *flakyClient) Upload(ctx context.Context, project, path string, content io.Reader) (remoteapi.Entry, error) {
	*f.count++
	if *f.count <= f.fail {
		return remoteapi.Entry{}, &remoteapi.TransientStatusError{StatusCode: 503}
	}

	return f.Fake.Upload(ctx, project, path, content)
}

type permanentFailClient struct {
	*remoteapi.Fake
}

func (f *permanentFailClient) Upload(ctx context.Context, project, path string, content io.Reader) (remoteapi.Entry, error) {
	return remoteapi.Entry{}, &remoteapi.PermanentStatusError{StatusCode: 403}
}
