package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/opensync/syncd/internal/remoteapi"
)

// maxIntentBuffer bounds the thread-safe hand-off channel between C2/C3
// and C4 (spec.md §5 "thread-safe hand-off"). Sized generously so a burst
// of watcher events never blocks the fsnotify goroutine under normal load.
const maxIntentBuffer = 4096

// WorkerConfig bundles the inputs BackgroundWorker needs to start C2, C3,
// and C4 on its scheduler (spec.md §4.5).
type WorkerConfig struct {
	SyncRoot       string
	Project        string
	Client         remoteapi.Client
	Snapshot       Snapshot
	Resolver       Resolver
	IgnorePatterns *ignore.GitIgnore
	DebounceWindow time.Duration
	PollInterval   time.Duration
	Retry          RetryConfig
	RestartWindow  time.Duration
	MaxRestarts    int
	Logger         *slog.Logger
}

// supervisedTask is one task the BackgroundWorker's supervisor restarts on
// unexpected termination (spec.md §4.5 "Supervision").
type supervisedTask struct {
	name string
	run  func(ctx context.Context) error
}

// BackgroundWorker implements C5 (spec.md §4.5): owns a dedicated
// goroutine group (the Go mapping of "a cooperative scheduler on a
// dedicated thread", SPEC_FULL.md §5), starts C2/C3/C4, and supervises
// each task, restarting any non-cancellation termination. Grounded on the
// teacher's internal/sync/orchestrator.go panic-recovered
// goroutine-per-unit-of-work style.
type BackgroundWorker struct {
	cfg WorkerConfig

	watcher *LocalWatcher
	poller  *RemotePoller
	queue   *Queue

	intents chan Intent

	interventionCB InterventionFunc
	notificationCB NotificationFunc

	mu       sync.Mutex
	cancel   context.CancelFunc
	eg       *errgroup.Group
	started  bool
	runErr   error
	doneOnce sync.Once
	done     chan struct{}
}

// NewBackgroundWorker constructs a BackgroundWorker. Callers must call
// SetInterventionCB / SetNotificationCB before Start, per spec.md §4.5.
func NewBackgroundWorker(cfg WorkerConfig) *BackgroundWorker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &BackgroundWorker{cfg: cfg, done: make(chan struct{})}
}

// SetInterventionCB registers the UI's conflict-resolution callback.
func (w *BackgroundWorker) SetInterventionCB(f InterventionFunc) {
	w.interventionCB = f
}

// SetNotificationCB registers the UI's terminal-result callback.
func (w *BackgroundWorker) SetNotificationCB(f NotificationFunc) {
	w.notificationCB = f
}

// Start loads the sync components, instantiates C2/C3/C4, and launches
// their tasks under supervision on a dedicated goroutine group (spec.md
// §4.5 "On start()"). Start returns once the components are constructed;
// the tasks continue running until Stop is called or ctx is canceled.
func (w *BackgroundWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.intents = make(chan Intent, maxIntentBuffer)

	w.queue = NewQueue(w.cfg.SyncRoot, w.cfg.Project, w.cfg.Client, w.cfg.Snapshot, w.cfg.Retry, w.intents, w.cfg.Logger)
	w.queue.Intervention = w.interventionCB
	w.queue.Notify = w.notificationCB

	w.poller = NewRemotePoller(w.cfg.Client, w.cfg.Project, w.cfg.Snapshot, w.cfg.PollInterval, w.intents, w.cfg.Logger)

	w.watcher = NewLocalWatcher(w.cfg.SyncRoot, w.cfg.DebounceWindow, w.cfg.Resolver, w.cfg.IgnorePatterns, w.intents, w.cfg.Logger)

	tasks := []supervisedTask{
		{name: "queue", run: w.queue.Run},
		{name: "poller", run: w.poller.Run},
		{name: "watcher", run: w.watcher.Run},
	}

	// One errgroup member per supervised task, grounded on the teacher's
	// transfer.go dispatchPool: Stop's errgroup.Wait() blocks until every
	// member has returned, the same join semantics spec.md §4.5 asks of
	// stop() ("blocks until the worker thread joins").
	w.eg = &errgroup.Group{}

	for _, t := range tasks {
		t := t

		w.eg.Go(func() error {
			w.supervise(runCtx, t)
			return nil
		})
	}

	w.started = true

	return nil
}

// supervise runs task.run and, on any non-cancellation termination,
// restarts it with the same parameters (spec.md §4.5: "The supervision
// loop is the sole restart authority; tasks must not self-restart").
// Restarts are rate-limited to MaxRestarts within RestartWindow; exceeding
// that escalates to a fatal log and the task is not restarted again
// (spec.md §7 "repeated failure within a window escalates to fatal").
func (w *BackgroundWorker) supervise(ctx context.Context, t supervisedTask) {
	var restarts []time.Time

	for {
		err := w.runGuarded(ctx, t)

		if ctx.Err() != nil {
			return // cancellation: zero restarts
		}

		if err != nil {
			w.cfg.Logger.Error("supervisor: task terminated, restarting", slog.String("task", t.name), slog.Any("error", err))
		} else {
			w.cfg.Logger.Warn("supervisor: task returned without cancellation, restarting", slog.String("task", t.name))
		}

		now := time.Now()
		restarts = append(restarts, now)
		restarts = pruneOlderThan(restarts, now.Add(-w.cfg.RestartWindow))

		if len(restarts) > w.cfg.MaxRestarts {
			w.cfg.Logger.Error("supervisor: task exceeded restart budget, giving up (fatal)",
				slog.String("task", t.name), slog.Int("restarts", len(restarts)), slog.Duration("window", w.cfg.RestartWindow))
			w.recordFatal(t.name, err)

			return
		}
	}
}

// runGuarded recovers a panic in task.run and turns it into an error so
// the supervisor can treat it like any other non-cancellation
// termination, matching the teacher's panic-recovered goroutine style.
func (w *BackgroundWorker) runGuarded(ctx context.Context, t supervisedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicAsError(t.name, r)
		}
	}()

	return t.run(ctx)
}

func (w *BackgroundWorker) recordFatal(task string, cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.runErr == nil {
		w.runErr = fatalTaskError(task, cause)

		w.doneOnce.Do(func() { close(w.done) })
	}
}

// Err returns the fatal error that ended the worker, if any (spec.md §7
// "Fatal ... requiring user restart").
func (w *BackgroundWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.runErr
}

// Done returns a channel closed when a supervised task escalates to
// fatal, so the CLI can exit with a non-zero status.
func (w *BackgroundWorker) Done() <-chan struct{} {
	return w.done
}

// QueueDepth returns the number of intents currently buffered between
// C2/C3 and C4, for the CLI's status command (SPEC_FULL.md §10). Zero
// before Start.
func (w *BackgroundWorker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.intents)
}

// LastPollTime returns the remote poller's most recent cycle start time,
// the zero time if Start has not been called yet or no cycle has run.
func (w *BackgroundWorker) LastPollTime() time.Time {
	w.mu.Lock()
	p := w.poller
	w.mu.Unlock()

	if p == nil {
		return time.Time{}
	}

	return p.LastPollTime()
}

// DroppedEvents returns the local watcher's count of intents dropped due
// to a full intents channel (SPEC_FULL.md §10).
func (w *BackgroundWorker) DroppedEvents() int64 {
	w.mu.Lock()
	watch := w.watcher
	w.mu.Unlock()

	if watch == nil {
		return 0
	}

	return watch.DroppedEvents()
}

// SyncNow schedules a one-shot remote poll cycle (spec.md §4.5
// "sync_now()"). Thread-safe; callable from the UI thread.
func (w *BackgroundWorker) SyncNow() {
	w.mu.Lock()
	p := w.poller
	w.mu.Unlock()

	if p != nil {
		p.SyncNow()
	}
}

// Stop cancels all supervised tasks and blocks until they exit (spec.md
// §4.5 "stop() ... blocks until the worker thread joins"). Safe to call
// from the UI thread; safe to call more than once.
func (w *BackgroundWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	eg := w.eg
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if eg != nil {
		_ = eg.Wait() // supervise() always returns nil; errors surface via Err()/Done()
	}
}

func pruneOlderThan(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]

	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}

	return out
}
