package engine

import (
	"context"

	"github.com/opensync/syncd/internal/pathnorm"
)

// SnapshotResolver implements Resolver directly against a Snapshot. It is
// the default "resolver... supplied by the surrounding system" of spec.md
// §4.2 for a single-process deployment where the watcher and the queue
// share one Snapshot; a GUI-integrated build could supply a different
// Resolver backed by its own cache.
type SnapshotResolver struct {
	snapshot Snapshot
}

// NewSnapshotResolver wraps snapshot as a Resolver.
func NewSnapshotResolver(snapshot Snapshot) *SnapshotResolver {
	return &SnapshotResolver{snapshot: snapshot}
}

// LocalToNode looks up path in the Snapshot, ignoring context cancellation
// per spec.md §6's assumption that the resolver is synchronous.
func (r *SnapshotResolver) LocalToNode(path pathnorm.Path, _ bool) (*Node, bool) {
	n, ok, err := r.snapshot.Get(context.Background(), path)
	if err != nil || !ok {
		return nil, false
	}

	return &n, true
}

var _ Resolver = (*SnapshotResolver)(nil)
