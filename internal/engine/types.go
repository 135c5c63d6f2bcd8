// Package engine implements the sync-reconciliation core: the local watcher
// (C2), remote poller (C3), operations queue (C4), and background worker
// (C5) described in SPEC_FULL.md §4. It consumes internal/consolidator as a
// pure library and internal/remoteapi as its remote-side collaborator,
// mirroring how the teacher's internal/sync consumed internal/graph.
package engine

import (
	"time"

	"github.com/opensync/syncd/internal/pathnorm"
)

// Direction tags which side an OperationIntent originated from, per
// SPEC_FULL.md §3.
type Direction int

const (
	LocalToRemote Direction = iota
	RemoteToLocal
)

func (d Direction) String() string {
	if d == RemoteToLocal {
		return "remote->local"
	}

	return "local->remote"
}

// IntentKind enumerates the seven operation intents of spec.md §3.
type IntentKind int

const (
	CreateFile IntentKind = iota
	UpdateFile
	DeleteFile
	MoveFile
	CreateFolder
	DeleteFolder
	MoveFolder
)

func (k IntentKind) String() string {
	switch k {
	case CreateFile:
		return "create_file"
	case UpdateFile:
		return "update_file"
	case DeleteFile:
		return "delete_file"
	case MoveFile:
		return "move_file"
	case CreateFolder:
		return "create_folder"
	case DeleteFolder:
		return "delete_folder"
	case MoveFolder:
		return "move_folder"
	default:
		return "unknown"
	}
}

func (k IntentKind) IsDir() bool {
	switch k {
	case CreateFolder, DeleteFolder, MoveFolder:
		return true
	default:
		return false
	}
}

// Intent is an OperationIntent (SPEC_FULL.md §3): a committed description
// of one piece of work flowing into the queue. Hash is the content
// hash/etag observed at intent-creation time (expansion over spec.md,
// grounded in the teacher's Item.ETag/QuickXorHash fields), letting the
// queue detect staleness without re-reading the source at commit time.
type Intent struct {
	Kind      IntentKind
	Direction Direction
	Path      pathnorm.Path
	DestPath  pathnorm.Path // set only for MoveFile / MoveFolder
	Hash      string
	RemoteID  string // set for RemoteToLocal intents; the node's id on the remote side
	CreatedAt time.Time
}

// NodeKind mirrors pathnorm's file/directory distinction for a tracked Node.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeFolder
)

// Node is the logical record describing a file or folder known to the
// system (spec.md §3). Nodes form a tree rooted at the sync root.
type Node struct {
	ID       string
	Path     pathnorm.Path
	Kind     NodeKind
	Hash     string // content-hash or etag
	ParentID string
	UpdatedAt time.Time
}

// Resolution is the user's (or an automatic policy's) answer to an
// Intervention request (spec.md §4.4).
type Resolution int

const (
	ResolutionKeepLocal Resolution = iota
	ResolutionKeepRemote
	ResolutionKeepBoth
	ResolutionSkip
)

// Conflict describes a divergence between local and remote state that the
// queue cannot resolve on its own (spec.md §4.4).
type Conflict struct {
	Intent      Intent
	LocalState  string
	RemoteState string
	Recommended Resolution
}

// NotificationKind classifies a terminal Notification.
type NotificationKind int

const (
	NotificationCommitted NotificationKind = iota
	NotificationConflict
	NotificationPermanentError
	NotificationDropped
)

// Notification is a terminal result descriptor delivered to the UI
// (spec.md §4.4, §6).
type Notification struct {
	Kind    NotificationKind
	Intent  Intent
	Message string
}

// InterventionFunc is the "Intervention callback (exposed)" of spec.md §6.
// It is invoked synchronously from the queue's goroutine and must not
// block indefinitely without allowing cancellation — callers typically
// wrap a UI-driven channel receive with ctx.Done().
type InterventionFunc func(Conflict) Resolution

// NotificationFunc is the "Notification callback (exposed)" of spec.md §6.
type NotificationFunc func(Notification)

// Resolver is the "Resolver interface (consumed)" of spec.md §6: maps a
// local path to a Node in the Snapshot. Assumed synchronous and
// side-effect free, pure over the span of one poll cycle (spec.md §6).
type Resolver interface {
	LocalToNode(path pathnorm.Path, isFolder bool) (*Node, bool)
}
