package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/opensync/syncd/internal/pathnorm"
	"github.com/opensync/syncd/internal/remoteapi"
)

// ErrPermanent marks an error as non-retryable (spec.md §7 "Permanent"):
// auth failure, quota exceeded, unsupported operation. Executors wrap
// their errors with this sentinel via fmt.Errorf("%w: %w") so the queue's retry
// loop can classify them with errors.Is.
var ErrPermanent = errors.New("engine: permanent error")

// ErrConflict marks an error as a conflict requiring Intervention
// (spec.md §7 "Conflict").
var ErrConflict = errors.New("engine: conflict")

// RetryConfig bounds the queue's exponential backoff for transient errors
// (spec.md §4.4 "Retry and failure"), grounded on
// github.com/sethvargo/go-retry, already pulled in transitively by the
// teacher's goose dependency and promoted here to a direct dependency for
// the queue's own retry loop.
type RetryConfig struct {
	Initial time.Duration
	Ceiling time.Duration
	MaxTries int
}

// Queue implements C4 (spec.md §4.4): a single logical consumer that
// drains Intents in submission order, applies each against its side
// (local filesystem or remote API), updates the Snapshot on commit, and
// escalates divergence to an Intervention callback. Grounded on the
// teacher's internal/sync/executor.go dispatch-by-action-type shape and
// internal/sync/executor_conflict.go's three-way comparison, collapsed to
// this core's two-sided (no synced-base) model.
type Queue struct {
	root     string
	project  string
	client   remoteapi.Client
	snapshot Snapshot
	retry    RetryConfig
	logger   *slog.Logger

	intents <-chan Intent

	Intervention InterventionFunc
	Notify       NotificationFunc
}

// NewQueue creates a Queue draining from intents. InterventionFunc and
// NotificationFunc are set afterward via exported fields, per spec.md
// §4.5's "set_intervention_cb/set_notification_cb... before start".
func NewQueue(root, project string, client remoteapi.Client, snapshot Snapshot, retryCfg RetryConfig, intents <-chan Intent, logger *slog.Logger) *Queue {
	return &Queue{
		root:     root,
		project:  project,
		client:   client,
		snapshot: snapshot,
		retry:    retryCfg,
		logger:   logger,
		intents:  intents,
	}
}

// Run drains intents one at a time until ctx is canceled or the channel
// closes. At-most-one in-flight operation is guaranteed structurally: Run
// is a single goroutine processing intents from a single channel receive
// loop (spec.md §4.4 "Serialization").
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case intent, ok := <-q.intents:
			if !ok {
				return nil
			}

			q.process(ctx, intent)
		}
	}
}

// process executes one intent with bounded exponential backoff on
// transient errors, escalating conflicts to Intervention and permanent
// errors to Notification (spec.md §4.4, §7).
func (q *Queue) process(ctx context.Context, intent Intent) {
	initial := q.retry.Initial
	if initial <= 0 {
		initial = time.Second
	}

	backoff, err := retry.NewExponential(initial)
	if err != nil {
		// initial is guarded above to be positive, the only documented
		// failure mode for NewExponential; this is unreachable in practice.
		q.logger.Error("queue: invalid retry config, using 1s backoff", slog.Any("error", err))
		backoff, _ = retry.NewExponential(time.Second)
	}

	backoff = retry.WithCappedDuration(q.retry.Ceiling, backoff)
	backoff = retry.WithMaxRetries(uint64(q.retry.MaxTries), backoff)

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		execErr := q.execute(ctx, intent)
		if execErr == nil {
			return nil
		}

		if errors.Is(execErr, ErrConflict) {
			return execErr // terminal: not retryable, handled after retry.Do returns
		}

		if errors.Is(execErr, ErrPermanent) {
			return execErr // terminal: not retryable
		}

		q.logger.Warn("queue: transient error, retrying",
			slog.String("path", intent.Path.String()),
			slog.String("kind", intent.Kind.String()),
			slog.Any("error", execErr),
		)

		return retry.RetryableError(execErr)
	})

	switch {
	case err == nil:
		q.notify(Notification{Kind: NotificationCommitted, Intent: intent})
	case errors.Is(err, ErrConflict):
		q.handleConflict(ctx, intent, err)
	case errors.Is(err, ErrPermanent):
		q.logger.Error("queue: permanent error, dropping intent",
			slog.String("path", intent.Path.String()), slog.Any("error", err))
		q.notify(Notification{Kind: NotificationPermanentError, Intent: intent, Message: err.Error()})
	default:
		q.logger.Error("queue: exhausted retries, dropping intent",
			slog.String("path", intent.Path.String()), slog.Any("error", err))
		q.notify(Notification{Kind: NotificationDropped, Intent: intent, Message: err.Error()})
	}
}

func (q *Queue) handleConflict(ctx context.Context, intent Intent, cause error) {
	if q.Intervention == nil {
		q.logger.Warn("queue: conflict with no intervention handler registered, skipping", slog.String("path", intent.Path.String()))
		q.notify(Notification{Kind: NotificationConflict, Intent: intent, Message: cause.Error()})

		return
	}

	conflict := Conflict{
		Intent:      intent,
		Recommended: ResolutionKeepRemote,
	}

	resolution := q.Intervention(conflict)

	if resErr := q.applyResolution(ctx, intent, resolution); resErr != nil {
		q.logger.Error("queue: applying conflict resolution failed",
			slog.String("path", intent.Path.String()), slog.Any("error", resErr))
		q.notify(Notification{Kind: NotificationPermanentError, Intent: intent, Message: resErr.Error()})

		return
	}

	q.notify(Notification{Kind: NotificationConflict, Intent: intent, Message: "resolved"})
}

func (q *Queue) applyResolution(ctx context.Context, intent Intent, res Resolution) error {
	switch res {
	case ResolutionSkip:
		return nil
	case ResolutionKeepLocal:
		forced := intent
		forced.Direction = LocalToRemote

		return q.execute(ctx, forced)
	case ResolutionKeepRemote:
		forced := intent
		forced.Direction = RemoteToLocal

		return q.execute(ctx, forced)
	case ResolutionKeepBoth:
		return q.keepBoth(ctx, intent)
	default:
		return fmt.Errorf("engine: unknown resolution %d", res)
	}
}

// keepBoth renames the incoming side's file to a sibling name and applies
// both, per spec.md §4.4 "keep-both (rename one)".
func (q *Queue) keepBoth(ctx context.Context, intent Intent) error {
	renamed := intent
	renamed.Path = renameForConflict(intent.Path)

	return q.execute(ctx, renamed)
}

func renameForConflict(p pathnorm.Path) pathnorm.Path {
	dir := filepath.Dir(p.String())
	base := filepath.Base(p.String())
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	renamed := stem + " (conflicted copy)" + ext
	if dir == "." {
		return pathnorm.New(renamed, p.IsDir())
	}

	return pathnorm.New(dir+"/"+renamed, p.IsDir())
}

// execute applies one intent against its declared side and, on success,
// updates the Snapshot atomically for the affected Node(s) (spec.md §4.4
// "On successful commit the Snapshot is updated atomically").
func (q *Queue) execute(ctx context.Context, intent Intent) error {
	if err := q.checkConflict(ctx, intent); err != nil {
		return err
	}

	if intent.Direction == LocalToRemote {
		return q.executeLocalToRemote(ctx, intent)
	}

	return q.executeRemoteToLocal(ctx, intent)
}

// checkConflict detects the spec.md §4.4 divergence case: the opposite
// side's state has moved since the intent was created. Only remote->local
// UpdateFile intents are checked: a conflict is reported when the local
// file was independently modified after the last known sync. Local->remote
// intents are never reported as conflicts here.
func (q *Queue) checkConflict(ctx context.Context, intent Intent) error {
	if intent.Kind != UpdateFile {
		return nil
	}

	node, known, err := q.snapshot.Get(ctx, intent.Path)
	if err != nil || !known {
		return nil
	}

	if intent.Direction == RemoteToLocal {
		localHash, statErr := localFileHash(filepath.Join(q.root, filepath.FromSlash(intent.Path.String())))
		if statErr == nil && localHash != node.Hash && localHash != intent.Hash {
			return fmt.Errorf("%w: local file modified since last sync at %q", ErrConflict, intent.Path.String())
		}
	}

	return nil
}

func (q *Queue) executeLocalToRemote(ctx context.Context, intent Intent) error {
	full := filepath.Join(q.root, filepath.FromSlash(intent.Path.String()))

	switch intent.Kind {
	case CreateFile, UpdateFile:
		f, err := os.Open(full)
		if err != nil {
			return classifyFSError(err)
		}
		defer f.Close()

		e, err := q.client.Upload(ctx, q.project, intent.Path.String(), f)
		if err != nil {
			return classifyRemoteError(err)
		}

		return q.snapshot.Put(ctx, Node{ID: e.ID, Path: intent.Path, Kind: NodeFile, Hash: e.Hash, UpdatedAt: time.Now()})

	case CreateFolder:
		e, err := q.client.CreateFolder(ctx, q.project, intent.Path.String())
		if err != nil {
			return classifyRemoteError(err)
		}

		return q.snapshot.Put(ctx, Node{ID: e.ID, Path: intent.Path, Kind: NodeFolder, UpdatedAt: time.Now()})

	case DeleteFile, DeleteFolder:
		node, known, err := q.snapshot.Get(ctx, intent.Path)
		if err != nil {
			return err
		}

		if !known {
			return nil
		}

		if delErr := q.client.Delete(ctx, q.project, node.ID); delErr != nil {
			return classifyRemoteError(delErr)
		}

		return q.snapshot.Delete(ctx, intent.Path)

	case MoveFile, MoveFolder:
		node, known, err := q.snapshot.Get(ctx, intent.Path)
		if err != nil {
			return err
		}

		if !known {
			return fmt.Errorf("%w: move source %q not in snapshot", ErrPermanent, intent.Path.String())
		}

		if _, moveErr := q.client.Move(ctx, q.project, node.ID, intent.DestPath.String()); moveErr != nil {
			return classifyRemoteError(moveErr)
		}

		return q.snapshot.Move(ctx, intent.Path, intent.DestPath)

	default:
		return fmt.Errorf("%w: unknown intent kind %v", ErrPermanent, intent.Kind)
	}
}

func (q *Queue) executeRemoteToLocal(ctx context.Context, intent Intent) error {
	full := filepath.Join(q.root, filepath.FromSlash(intent.Path.String()))

	switch intent.Kind {
	case CreateFile, UpdateFile:
		id := intent.RemoteID
		if id == "" {
			node, known, err := q.snapshot.Get(ctx, intent.Path)
			if err != nil {
				return err
			}

			if known {
				id = node.ID
			}
		}

		if id == "" {
			return fmt.Errorf("%w: no remote id for %q", ErrPermanent, intent.Path.String())
		}

		rc, err := q.client.FetchFile(ctx, id)
		if err != nil {
			return classifyRemoteError(err)
		}
		defer rc.Close()

		if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
			return classifyFSError(mkErr)
		}

		out, err := os.Create(full)
		if err != nil {
			return classifyFSError(err)
		}

		if _, err := io.Copy(out, rc); err != nil {
			out.Close()

			return classifyFSError(err)
		}

		if err := out.Close(); err != nil {
			return classifyFSError(err)
		}

		return q.snapshot.Put(ctx, Node{ID: id, Path: intent.Path, Kind: NodeFile, Hash: intent.Hash, UpdatedAt: time.Now()})

	case CreateFolder:
		if err := os.MkdirAll(full, 0o755); err != nil {
			return classifyFSError(err)
		}

		return q.snapshot.Put(ctx, Node{ID: intent.RemoteID, Path: intent.Path, Kind: NodeFolder, UpdatedAt: time.Now()})

	case DeleteFile, DeleteFolder:
		if err := os.RemoveAll(full); err != nil {
			return classifyFSError(err)
		}

		return q.snapshot.Delete(ctx, intent.Path)

	case MoveFile, MoveFolder:
		destFull := filepath.Join(q.root, filepath.FromSlash(intent.DestPath.String()))

		if mkErr := os.MkdirAll(filepath.Dir(destFull), 0o755); mkErr != nil {
			return classifyFSError(mkErr)
		}

		if err := os.Rename(full, destFull); err != nil {
			return classifyFSError(err)
		}

		return q.snapshot.Move(ctx, intent.Path, intent.DestPath)

	default:
		return fmt.Errorf("%w: unknown intent kind %v", ErrPermanent, intent.Kind)
	}
}

func (q *Queue) notify(n Notification) {
	if q.Notify != nil {
		q.Notify(n)
	}
}

// classifyFSError maps a filesystem error to the spec.md §7 taxonomy:
// "file busy"-shaped errors are transient, everything else is permanent
// (a missing directory or permission error will not resolve itself on
// retry without user intervention).
func classifyFSError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	if isTransientFSError(err) {
		return err // retryable as-is
	}

	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// classifyRemoteError maps a remoteapi error to the spec.md §7 taxonomy
// using the sentinel error types defined in internal/remoteapi.
func classifyRemoteError(err error) error {
	var transient *remoteapi.TransientStatusError
	if errors.As(err, &transient) {
		return err // retryable as-is
	}

	var permanent *remoteapi.PermanentStatusError
	if errors.As(err, &permanent) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	// Network-level errors (timeouts, connection reset) are transient.
	return err
}
