package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensync/syncd/internal/pathnorm"
	"github.com/opensync/syncd/internal/remoteapi"
)

// RemotePoller implements C3 (spec.md §4.3): periodically (and on explicit
// SyncNow) fetches the remote tree, diffs it against the Snapshot, and
// emits remote->local OperationIntents. Grounded on the teacher's
// internal/sync/delta.go + reconciler.go split, collapsed to one type
// since this core has no delta-token protocol to manage separately (the
// remote API boundary here is a full-tree list, per SPEC_FULL.md §6).
type RemotePoller struct {
	client   remoteapi.Client
	project  string
	snapshot Snapshot
	interval time.Duration
	logger   *slog.Logger

	intents chan<- Intent

	syncNow chan struct{}

	lastPoll atomic.Int64 // unix nanos of the last cycle start; 0 if never run
}

// NewRemotePoller creates a RemotePoller publishing intents onto the given
// channel, shared with the queue per spec.md's "single queue" design.
func NewRemotePoller(client remoteapi.Client, project string, snapshot Snapshot, interval time.Duration, intents chan<- Intent, logger *slog.Logger) *RemotePoller {
	return &RemotePoller{
		client:   client,
		project:  project,
		snapshot: snapshot,
		interval: interval,
		logger:   logger,
		intents:  intents,
		syncNow:  make(chan struct{}, 1),
	}
}

// SyncNow requests an out-of-band poll cycle at the next opportunity.
// Thread-safe; coalesces multiple pending requests into one (spec.md §4.5
// "sync_now()").
func (p *RemotePoller) SyncNow() {
	select {
	case p.syncNow <- struct{}{}:
	default:
	}
}

// Run executes poll cycles on p.interval and whenever SyncNow is called,
// until ctx is canceled. A poll cycle that fails is logged and the loop
// continues on the next interval, per spec.md §4.3: "a poll cycle that
// raises a transport error ... must continue on subsequent intervals."
func (p *RemotePoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.cycle(ctx); err != nil {
		p.logger.Warn("remote poller: initial cycle failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.cycle(ctx); err != nil {
				p.logger.Warn("remote poller: cycle failed, will retry next interval", slog.Any("error", err))
			}
		case <-p.syncNow:
			if err := p.cycle(ctx); err != nil {
				p.logger.Warn("remote poller: sync-now cycle failed", slog.Any("error", err))
			}
		}
	}
}

// cycle fetches the remote tree and diffs it against the Snapshot by
// Node ID, emitting the four intent classes of spec.md §4.3: create
// (remote-only ID), delete (local-only ID), update (same ID, changed
// hash), move (same ID, changed path/parent).
func (p *RemotePoller) cycle(ctx context.Context) error {
	p.lastPoll.Store(time.Now().UnixNano())

	// cycleID correlates this cycle's log lines the way the teacher's
	// planner.go stamps each plan with a CycleID for the same purpose.
	cycleID := uuid.New().String()
	p.logger.Debug("remote poller: cycle start", slog.String("cycle_id", cycleID))

	entries, err := p.client.ListTree(ctx, p.project)
	if err != nil {
		return err
	}

	remoteByID := make(map[string]remoteapi.Entry, len(entries))
	for _, e := range entries {
		remoteByID[e.ID] = e
	}

	local, err := p.snapshot.All(ctx)
	if err != nil {
		return err
	}

	localByID := make(map[string]Node, len(local))
	for _, n := range local {
		if n.ID != "" {
			localByID[n.ID] = n
		}
	}

	for id, e := range remoteByID {
		isDir := e.Kind == remoteapi.EntryFolder
		dest := pathnorm.New(e.Path, isDir)

		node, known := localByID[id]
		if !known {
			p.publish(ctx, Intent{Kind: createKind(isDir), Direction: RemoteToLocal, Path: dest, Hash: e.Hash, RemoteID: id, CreatedAt: time.Now()})
			continue
		}

		if !node.Path.Equal(dest) {
			p.publish(ctx, Intent{Kind: moveKind(isDir), Direction: RemoteToLocal, Path: node.Path, DestPath: dest, Hash: e.Hash, RemoteID: id, CreatedAt: time.Now()})
			continue
		}

		if !isDir && node.Hash != e.Hash {
			p.publish(ctx, Intent{Kind: UpdateFile, Direction: RemoteToLocal, Path: dest, Hash: e.Hash, RemoteID: id, CreatedAt: time.Now()})
		}
	}

	for id, node := range localByID {
		if _, stillRemote := remoteByID[id]; stillRemote {
			continue
		}

		p.publish(ctx, Intent{Kind: deleteKind(node.Kind == NodeFolder), Direction: RemoteToLocal, Path: node.Path, CreatedAt: time.Now()})
	}

	p.logger.Debug("remote poller: cycle done", slog.String("cycle_id", cycleID), slog.Int("remote_entries", len(remoteByID)))

	return nil
}

// LastPollTime returns the start time of the most recently started poll
// cycle, or the zero time if none has run yet. Used by the CLI's status
// command (SPEC_FULL.md §10 "Status reporting").
func (p *RemotePoller) LastPollTime() time.Time {
	ns := p.lastPoll.Load()
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns)
}

func (p *RemotePoller) publish(ctx context.Context, intent Intent) {
	select {
	case p.intents <- intent:
	case <-ctx.Done():
	}
}

func createKind(isDir bool) IntentKind {
	if isDir {
		return CreateFolder
	}

	return CreateFile
}

func deleteKind(isDir bool) IntentKind {
	if isDir {
		return DeleteFolder
	}

	return DeleteFile
}

func moveKind(isDir bool) IntentKind {
	if isDir {
		return MoveFolder
	}

	return MoveFile
}
