package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opensync/syncd/internal/pathnorm"
)

// Snapshot is the last-known-good set of Nodes the remote poller (C3) diffs
// against and the operations queue (C4) mutates on commit (spec.md §3, §6).
// Implementations must serialize writes and allow concurrent reads without
// holding a lock across I/O (SPEC_FULL.md §5: the Snapshot read lease is
// never held across store I/O).
type Snapshot interface {
	// All returns every live Node, keyed by normalized path.
	All(ctx context.Context) (map[string]Node, error)
	// Get looks up a Node by its normalized path.
	Get(ctx context.Context, path pathnorm.Path) (Node, bool, error)
	// Put inserts or replaces a Node (used on commit of a create/update/move).
	Put(ctx context.Context, n Node) error
	// Delete removes a Node and, for folders, every tracked descendant.
	Delete(ctx context.Context, path pathnorm.Path) error
	// Move relocates a Node (and, for folders, its descendants) from one
	// path to another, preserving ID and Hash.
	Move(ctx context.Context, from, to pathnorm.Path) error
}

// MemSnapshot is an in-memory Snapshot implementation, used by unit tests.
// Safe for
// concurrent use behind a RWMutex, matching the teacher's in-memory
// baseline used by observer_local_test.go.
type MemSnapshot struct {
	mu    sync.RWMutex
	nodes map[string]Node // keyed by Path.String()
}

// NewMemSnapshot returns an empty MemSnapshot.
func NewMemSnapshot() *MemSnapshot {
	return &MemSnapshot{nodes: make(map[string]Node)}
}

func (s *MemSnapshot) All(_ context.Context) (map[string]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Node, len(s.nodes))
	for k, v := range s.nodes {
		out[k] = v
	}

	return out, nil
}

func (s *MemSnapshot) Get(_ context.Context, path pathnorm.Path) (Node, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[path.String()]

	return n, ok, nil
}

func (s *MemSnapshot) Put(_ context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[n.Path.String()] = n

	return nil
}

func (s *MemSnapshot) Delete(_ context.Context, path pathnorm.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes, path.String())

	if !path.IsDir() {
		return nil
	}

	for k, n := range s.nodes {
		if n.Path.HasPrefixDir(path) {
			delete(s.nodes, k)
		}
	}

	return nil
}

func (s *MemSnapshot) Move(_ context.Context, from, to pathnorm.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[from.String()]
	if !ok {
		return fmt.Errorf("engine: snapshot move: no node at %q", from.String())
	}

	delete(s.nodes, from.String())
	n.Path = to
	s.nodes[to.String()] = n

	if !from.IsDir() {
		return nil
	}

	var children []Node

	for k, c := range s.nodes {
		if c.Path.HasPrefixDir(from) {
			children = append(children, c)
			delete(s.nodes, k)
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Path.Depth() < children[j].Path.Depth() })

	for _, c := range children {
		c.Path = c.Path.Rebase(from, to)
		s.nodes[c.Path.String()] = c
	}

	return nil
}
