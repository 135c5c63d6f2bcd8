// Package consolidator implements the event-consolidation core (SPEC_FULL.md
// §4.1 / C1): a pure transformation from a bag of raw, noisy filesystem
// events into the minimal canonical event list that reproduces the same
// pre-to-post state change. It holds no filesystem handle and no channel —
// the watcher (internal/engine) owns batching and timing, this package owns
// only the folding policy, mirroring how the teacher's internal/sync kept
// observer_local.go's debounce separate from a pure reconciliation step.
package consolidator

import (
	"fmt"

	"github.com/opensync/syncd/internal/pathnorm"
)

// Kind identifies the filesystem-level operation a raw or canonical event
// represents.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "create"
	case Modified:
		return "modify"
	case Deleted:
		return "delete"
	case Moved:
		return "move"
	default:
		return "unknown"
	}
}

// RawEvent is one notification as reported by the local watcher, before
// consolidation. Dest is set only for Moved events.
type RawEvent struct {
	Kind   Kind
	Source pathnorm.Path
	Dest   pathnorm.Path
	IsDir  bool
}

// CanonicalEvent is a member of the minimal, folded event list the
// consolidator produces. It has the same shape as RawEvent; the distinct
// name documents that it has already passed through folding and carries the
// ordering guarantees described in SPEC_FULL.md §4.1.
type CanonicalEvent = RawEvent

// NewRawEvent validates and builds a RawEvent. Moved events must carry a
// Dest distinct from Source with matching directory-ness; every other kind
// must leave Dest at its zero value.
func NewRawEvent(kind Kind, source pathnorm.Path, dest pathnorm.Path, isDir bool) (RawEvent, error) {
	if kind == Moved && source.Equal(dest) {
		return RawEvent{}, fmt.Errorf("consolidator: move event source and destination are identical: %q", source.String())
	}

	if kind == Moved && source.IsDir() != dest.IsDir() {
		return RawEvent{}, fmt.Errorf("consolidator: move event source and destination differ in directory-ness: %q", source.String())
	}

	if kind != Moved && !dest.Equal(pathnorm.New("", true)) {
		return RawEvent{}, fmt.Errorf("consolidator: %s event must not carry a destination", kind)
	}

	return RawEvent{Kind: kind, Source: source, Dest: dest, IsDir: isDir}, nil
}
