// Package remoteapi is the "Remote API interface (consumed)" boundary of
// SPEC_FULL.md §6: synchronous operations to list a tree, fetch/upload
// file content, create folders, move/rename, delete, and read per-node
// content hashes. The concrete wire format of the content-repository
// service is out of scope (SPEC_FULL.md §1); this package stands in for
// it with a small HTTP client, grounded on the teacher's internal/graph
// client (retry, TokenSource, structured errors) but trimmed to the
// handful of calls the sync core actually drives.
package remoteapi

import (
	"context"
	"io"
)

// EntryKind distinguishes a file from a folder in a remote tree listing.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryFolder
)

// Entry is one node of the remote project tree, as returned by ListTree.
type Entry struct {
	ID       string
	Path     string // slash-separated, relative to the project root
	ParentID string
	Kind     EntryKind
	Hash     string // content-hash/etag
}

// Client is the remote API surface the poller (C3) and queue (C4) consume.
// Accept-interfaces: internal/engine never imports a concrete transport
// type, only this interface, matching the teacher's graph.ItemClient
// pattern in internal/sync/types.go.
type Client interface {
	// ListTree fetches every Entry under the given remote project.
	ListTree(ctx context.Context, project string) ([]Entry, error)
	// FetchFile streams a file's content. Caller closes the ReadCloser.
	FetchFile(ctx context.Context, id string) (io.ReadCloser, error)
	// Upload creates or replaces a file's content at the given remote path,
	// returning the new Entry (with its fresh content-hash).
	Upload(ctx context.Context, project, path string, content io.Reader) (Entry, error)
	// CreateFolder creates a folder at the given remote path.
	CreateFolder(ctx context.Context, project, path string) (Entry, error)
	// Move renames/reparents a node to newPath.
	Move(ctx context.Context, project, id, newPath string) (Entry, error)
	// Delete removes a node (and, for a folder, its subtree).
	Delete(ctx context.Context, project, id string) error
	// ContentHash returns the current content-hash/etag for a node.
	ContentHash(ctx context.Context, project, id string) (string, error)
}
