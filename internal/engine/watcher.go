package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/opensync/syncd/internal/consolidator"
	"github.com/opensync/syncd/internal/pathnorm"
)

// FsWatcher abstracts filesystem event monitoring. Satisfied by
// *fsnotify.Watcher; tests inject a fake, grounded directly on the
// teacher's internal/sync/observer_local.go FsWatcher interface.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error       { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error           { return fw.w.Errors }

var intentKindByCanonical = map[consolidator.Kind][2]IntentKind{
	consolidator.Created:  {CreateFile, CreateFolder},
	consolidator.Modified: {UpdateFile, UpdateFile}, // directory Modified is dropped by the consolidator
	consolidator.Deleted:  {DeleteFile, DeleteFolder},
	consolidator.Moved:    {MoveFile, MoveFolder},
}

// LocalWatcher implements C2 (spec.md §4.2): subscribes to recursive
// filesystem notifications over the sync root, batches raw events by a
// quiescence window, folds each batch through a fresh
// internal/consolidator.Consolidator, and emits local->remote
// OperationIntents. Grounded on the teacher's LocalObserver
// (observer_local.go) for the watcher-wrapping and debounce shape, adapted
// from a full-rescan design to genuine event batching per spec.md §4.2.
type LocalWatcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	resolver Resolver
	ignore   *ignore.GitIgnore

	watcherFactory func() (FsWatcher, error)

	intents chan<- Intent

	droppedEvents atomic.Int64

	mu      sync.Mutex
	watcher FsWatcher
}

// NewLocalWatcher creates a LocalWatcher. intents is the channel the
// watcher publishes local->remote Intents onto; it is the thread-safe
// hand-off from the fsnotify OS thread to the scheduler described in
// SPEC_FULL.md §5.
func NewLocalWatcher(root string, debounce time.Duration, resolver Resolver, patterns *ignore.GitIgnore, intents chan<- Intent, logger *slog.Logger) *LocalWatcher {
	return &LocalWatcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		resolver: resolver,
		ignore:   patterns,
		intents:  intents,
		watcherFactory: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyWrapper{w: w}, nil
		},
	}
}

// DroppedEvents returns the number of intents dropped because the
// intents channel was full when the watcher tried to publish (spec.md's
// "safety scan" concept maps onto the remote poller's reconciliation pass
// here: a dropped intent is recovered by the next full poll cycle).
func (w *LocalWatcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

// Run subscribes to the sync root and blocks, batching events by
// quiescence window and publishing intents, until ctx is canceled.
func (w *LocalWatcher) Run(ctx context.Context) error {
	fw, err := w.watcherFactory()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	defer fw.Close()

	if err := addRecursive(fw, w.root); err != nil {
		return err
	}

	var (
		timer     *time.Timer
		timerC    <-chan time.Time
		batch     *consolidator.Consolidator
		batchDirs map[string]bool
	)

	resetBatch := func() {
		batch = consolidator.New()
		batchDirs = make(map[string]bool)
	}
	resetBatch()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			if w.ignored(ev.Name) {
				continue
			}

			raw, isCreateDir, ok2 := w.toRawEvent(ev)
			if !ok2 {
				continue
			}

			batch.Push(raw)

			if isCreateDir {
				batchDirs[ev.Name] = true
				if addErr := fw.Add(ev.Name); addErr != nil {
					w.logger.Warn("watcher: failed to add new directory", slog.String("path", ev.Name), slog.Any("error", addErr))
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}

				timer.Reset(w.debounce)
			}

			timerC = timer.C

		case <-timerC:
			w.closeBatch(ctx, batch)
			resetBatch()
			timer = nil
			timerC = nil

		case err, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("watcher: fsnotify error", slog.Any("error", err))
		}
	}
}

// closeBatch converts a quiescence-closed batch to intents and publishes
// them, applying the resolver contextualization of spec.md §4.2.
func (w *LocalWatcher) closeBatch(ctx context.Context, batch *consolidator.Consolidator) {
	for _, ce := range batch.Events() {
		intent := w.toIntent(ce)

		select {
		case w.intents <- intent:
		case <-ctx.Done():
			return
		default:
			w.droppedEvents.Add(1)
			w.logger.Warn("watcher: intents channel full, dropping intent (next remote poll reconciles)",
				slog.String("path", intent.Path.String()),
				slog.String("kind", intent.Kind.String()),
			)
		}
	}
}

// toIntent maps one CanonicalEvent to an OperationIntent per the table in
// spec.md §4.2, demoting CreateFile to UpdateFile when the resolver already
// knows the path (spec.md §4.2 "Contextualization").
func (w *LocalWatcher) toIntent(ce consolidator.CanonicalEvent) Intent {
	pair := intentKindByCanonical[ce.Kind]

	kind := pair[0]
	if ce.IsDir {
		kind = pair[1]
	}

	if kind == CreateFile && w.resolver != nil {
		if _, known := w.resolver.LocalToNode(ce.Source, false); known {
			kind = UpdateFile
		}
	}

	intent := Intent{
		Kind:      kind,
		Direction: LocalToRemote,
		Path:      ce.Source,
		CreatedAt: time.Now(),
	}

	if ce.Kind == consolidator.Moved {
		intent.Path = ce.Source
		intent.DestPath = ce.Dest
	}

	return intent
}

func (w *LocalWatcher) ignored(name string) bool {
	if w.ignore == nil {
		return false
	}

	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return false
	}

	return w.ignore.MatchesPath(rel)
}

// toRawEvent maps an fsnotify.Event to a consolidator.RawEvent. fsnotify
// reports a rename as two independent events (Rename on the source,
// Create on the destination); this watcher cannot pair them within a
// single Push call, so each is pushed as the "lost half" of a move per
// spec.md §9 Open Questions: a bare Rename becomes Deleted(src), a bare
// Create after a rename becomes Created(dst), both reconciled by the next
// remote poll. isCreateDir reports whether fw.Add should be called for a
// newly observed directory.
func (w *LocalWatcher) toRawEvent(ev fsnotify.Event) (consolidator.RawEvent, bool, bool) {
	isDir := false
	if fi, err := osStat(ev.Name); err == nil {
		isDir = fi.IsDir()
	}

	p := pathnorm.New(relOrAbs(w.root, ev.Name), isDir)

	switch {
	case ev.Op.Has(fsnotify.Create):
		return consolidator.RawEvent{Kind: consolidator.Created, Source: p, IsDir: isDir}, isDir, true
	case ev.Op.Has(fsnotify.Write):
		return consolidator.RawEvent{Kind: consolidator.Modified, Source: p, IsDir: isDir}, false, true
	case ev.Op.Has(fsnotify.Remove):
		return consolidator.RawEvent{Kind: consolidator.Deleted, Source: p, IsDir: isDir}, false, true
	case ev.Op.Has(fsnotify.Rename):
		return consolidator.RawEvent{Kind: consolidator.Deleted, Source: p, IsDir: isDir}, false, true
	default:
		return consolidator.RawEvent{}, false, false
	}
}

// addRecursive walks root and adds every directory to fw, mirroring the
// teacher's recursive-Add-at-start behavior (fsnotify watches are not
// recursive on Linux).
func addRecursive(fw FsWatcher, root string) error {
	return walkDirs(root, func(dir string) error {
		return fw.Add(dir)
	})
}
