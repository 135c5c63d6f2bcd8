package consolidator

import (
	"sort"

	"github.com/opensync/syncd/internal/pathnorm"
)

// origin classifies how a tracked token's current content came to be,
// which in turn decides whether it surfaces as Create, Move or Modify.
type origin int

const (
	originExternal origin = iota // untouched content, present before this batch
	originCreated                // authored within this batch via a Created event
	originModified                // a pre-existing path whose content changed in place
)

// token tracks one filesystem object's identity across the batch. Ids are
// unique ints within a batch; Created/Modified always mint a fresh id
// distinct from whatever they replace.
type token struct {
	id      int
	origin  origin
	isDir   bool
	bornAt  pathnorm.Path // originModified only: path where the edit first occurred
}

// Consolidator folds a batch of RawEvents into the minimal CanonicalEvent
// list that reproduces the same net filesystem change (SPEC_FULL.md §4.1).
// Push validates and records events in arrival order; Events computes the
// canonical list. A Consolidator is not safe for concurrent use — the
// watcher drains one quiescence window per instance.
type Consolidator struct {
	raw []RawEvent
}

// New returns an empty Consolidator.
func New() *Consolidator {
	return &Consolidator{}
}

// Push records one raw event for later consolidation.
func (c *Consolidator) Push(e RawEvent) {
	c.raw = append(c.raw, e)
}

// Events returns the canonical, folded event list in the order specified by
// SPEC_FULL.md §4.1: moves, then deletes, then creates, then modifies, each
// bucket internally ordered per policy 5.
func (c *Consolidator) Events() []CanonicalEvent {
	filtered := dropDirModifies(c.raw)

	preState := computePreState(filtered)

	state := make(map[pathnorm.Path]*token, len(preState))
	for p, t := range preState {
		state[p] = t
	}

	superseded := make(map[int]bool)
	nextID := 0
	mint := func() int {
		nextID++
		return nextID
	}

	for _, e := range filtered {
		switch e.Kind {
		case Created:
			if old := state[e.Source]; old != nil {
				superseded[old.id] = true
			}

			state[e.Source] = &token{id: mint(), origin: originCreated, isDir: e.IsDir}

		case Modified:
			old := state[e.Source]
			o := originModified
			bornAt := e.Source

			if old != nil {
				superseded[old.id] = true

				if old.origin == originCreated {
					o = originCreated
				} else if old.origin == originModified {
					bornAt = old.bornAt
				}
			}

			state[e.Source] = &token{id: mint(), origin: o, isDir: e.IsDir, bornAt: bornAt}

		case Deleted:
			deletePath(state, e.Source, e.IsDir)

		case Moved:
			movePath(state, superseded, e.Source, e.Dest, e.IsDir)
		}
	}

	// Locate where each surviving token now lives.
	postPath := make(map[int]pathnorm.Path, len(state))
	postTok := make(map[int]*token, len(state))

	for p, t := range state {
		postPath[t.id] = p
		postTok[t.id] = t
	}

	var deletes, moves, creates, modifies []CanonicalEvent

	for p, preTok := range preState {
		if superseded[preTok.id] {
			continue
		}

		if dst, alive := postPath[preTok.id]; alive {
			if !dst.Equal(p) {
				moves = append(moves, CanonicalEvent{Kind: Moved, Source: p, Dest: dst, IsDir: preTok.isDir})
			}

			continue
		}

		deletes = append(deletes, CanonicalEvent{Kind: Deleted, Source: p, IsDir: preTok.isDir})
	}

	for id, t := range postTok {
		switch t.origin {
		case originCreated:
			creates = append(creates, CanonicalEvent{Kind: Created, Source: postPath[id], IsDir: t.isDir})
		case originModified:
			dst := postPath[id]
			if !t.bornAt.Equal(dst) {
				moves = append(moves, CanonicalEvent{Kind: Moved, Source: t.bornAt, Dest: dst, IsDir: t.isDir})
			}

			modifies = append(modifies, CanonicalEvent{Kind: Modified, Source: dst, IsDir: t.isDir})
		}
	}

	deletes = dedupDeletesAgainstCreates(deletes, creates)
	deletes = subsumeSubtree(deletes)
	moves = subsumeMoves(moves)

	sort.Slice(deletes, func(i, j int) bool { return deeperFirst(deletes[i].Source, deletes[j].Source) })
	sort.Slice(moves, func(i, j int) bool { return deeperFirst(moves[i].Source, moves[j].Source) })
	sort.Slice(creates, func(i, j int) bool { return shallowerFirst(creates[i].Source, creates[j].Source) })
	// Lexical order is just a deterministic tiebreaker among modifies that
	// have no ordering constraint of their own; the "move before its
	// rebased modify" rule (policy 5) is already satisfied by bucket
	// concatenation order below (moves always precede modifies), not by
	// this comparator.
	sort.Slice(modifies, func(i, j int) bool { return modifies[i].Source.String() < modifies[j].Source.String() })

	out := make([]CanonicalEvent, 0, len(moves)+len(deletes)+len(creates)+len(modifies))
	out = append(out, moves...)
	out = append(out, deletes...)
	out = append(out, creates...)
	out = append(out, modifies...)

	return out
}

// dropDirModifies discards Modified events on directories (policy 1):
// directory mtimes churn on every child change and carry no sync-relevant
// information of their own.
func dropDirModifies(events []RawEvent) []RawEvent {
	out := make([]RawEvent, 0, len(events))

	for _, e := range events {
		if e.Kind == Modified && e.IsDir {
			continue
		}

		out = append(out, e)
	}

	return out
}

// computePreState determines, for every path the batch touches, whether it
// existed before the batch started. A path's first reference as the SOURCE
// of an event decides it: if that first reference is a Created event the
// path is new; otherwise it is assumed to have pre-existed.
func computePreState(events []RawEvent) map[pathnorm.Path]*token {
	seen := make(map[pathnorm.Path]bool)
	pre := make(map[pathnorm.Path]*token)
	nextID := 0

	for _, e := range events {
		if seen[e.Source] {
			continue
		}

		seen[e.Source] = true

		if e.Kind == Created {
			continue
		}

		nextID++
		pre[e.Source] = &token{id: -nextID, origin: originExternal, isDir: e.IsDir}
	}

	return pre
}

// deletePath removes path from state. For a directory, every currently
// tracked descendant is removed too, modelling the OS deleting the whole
// subtree in one filesystem call even when the watcher never reports
// per-descendant delete events for it.
func deletePath(state map[pathnorm.Path]*token, p pathnorm.Path, isDir bool) {
	delete(state, p)

	if !isDir {
		return
	}

	for q := range state {
		if q.HasPrefixDir(p) {
			delete(state, q)
		}
	}
}

// movePath relocates the token at src to dst. If src is not currently
// occupied (e.g. a directory cascade already relocated it via an ancestor
// move processed earlier in the batch), this is a no-op: the redundant
// descendant event carries no new information.
//
// Whatever token currently occupies dst (if any) is displaced and marked
// superseded. Without this, a path whose only appearance in the batch is
// as a move destination (e.g. the "tmp2" in a save-through-temp shuffle)
// gets a spurious pre-existing entry from computePreState the moment it
// is later referenced as a source — e.g. Move(P, dst) then Delete(dst) —
// and that phantom token would otherwise resurface as an extra Delete in
// the output (spec.md §4.1 policy 4).
func movePath(state map[pathnorm.Path]*token, superseded map[int]bool, src, dst pathnorm.Path, isDir bool) {
	t, ok := state[src]
	if !ok {
		return
	}

	delete(state, src)

	if old, occupied := state[dst]; occupied {
		superseded[old.id] = true
	}

	state[dst] = t

	if !isDir {
		return
	}

	for q, qt := range state {
		if q.HasPrefixDir(src) {
			delete(state, q)

			rebased := q.Rebase(src, dst)
			if old, occupied := state[rebased]; occupied {
				superseded[old.id] = true
			}

			state[rebased] = qt
		}
	}
}

// dedupDeletesAgainstCreates drops a delete whenever a create lands on the
// exact same path (policy 3: "Delete(P) then Create(P) -> Create(P)").
func dedupDeletesAgainstCreates(deletes, creates []CanonicalEvent) []CanonicalEvent {
	createdAt := make(map[pathnorm.Path]bool, len(creates))
	for _, c := range creates {
		createdAt[c.Source] = true
	}

	out := deletes[:0:0]
	for _, d := range deletes {
		if createdAt[d.Source] {
			continue
		}

		out = append(out, d)
	}

	return out
}

// subsumeSubtree drops any event whose source lies under a shallower
// directory event of the same kind already kept, per SPEC_FULL.md §4.1
// policy 2. It is called with the delete list only; moves are subsumed by
// subsumeMoves.
func subsumeSubtree(events []CanonicalEvent) []CanonicalEvent {
	sorted := append([]CanonicalEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source.Depth() < sorted[j].Source.Depth() })

	var kept []CanonicalEvent

	for _, e := range sorted {
		absorbed := false

		for _, k := range kept {
			if k.IsDir && e.Source.HasPrefixDir(k.Source) {
				absorbed = true
				break
			}
		}

		if !absorbed {
			kept = append(kept, e)
		}
	}

	return kept
}

// subsumeMoves is subsumeSubtree specialized for moves: a descendant move
// is absorbed only when its destination also matches the rebase of its
// source under the absorbing directory move.
func subsumeMoves(events []CanonicalEvent) []CanonicalEvent {
	sorted := append([]CanonicalEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source.Depth() < sorted[j].Source.Depth() })

	var kept []CanonicalEvent

	for _, e := range sorted {
		absorbed := false

		for _, k := range kept {
			if k.IsDir && e.Source.HasPrefixDir(k.Source) && e.Dest.Equal(e.Source.Rebase(k.Source, k.Dest)) {
				absorbed = true
				break
			}
		}

		if !absorbed {
			kept = append(kept, e)
		}
	}

	return kept
}

func deeperFirst(a, b pathnorm.Path) bool {
	if a.Depth() != b.Depth() {
		return a.Depth() > b.Depth()
	}

	return a.String() < b.String()
}

func shallowerFirst(a, b pathnorm.Path) bool {
	if a.Depth() != b.Depth() {
		return a.Depth() < b.Depth()
	}

	return a.String() < b.String()
}
