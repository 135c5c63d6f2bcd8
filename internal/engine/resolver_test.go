package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensync/syncd/internal/pathnorm"
)

func TestSnapshotResolver_LocalToNode_Found(t *testing.T) {
	snapshot := NewMemSnapshot()
	path := pathnorm.New("docs/report.txt", false)

	require.NoError(t, snapshot.Put(context.Background(), Node{
		ID:        "remote-1",
		Path:      path,
		Kind:      NodeFile,
		Hash:      "etag-1",
		UpdatedAt: time.Now(),
	}))

	resolver := NewSnapshotResolver(snapshot)

	node, ok := resolver.LocalToNode(path, false)
	require.True(t, ok)
	assert.Equal(t, "remote-1", node.ID)
	assert.Equal(t, "etag-1", node.Hash)
}

func TestSnapshotResolver_LocalToNode_NotFound(t *testing.T) {
	resolver := NewSnapshotResolver(NewMemSnapshot())

	_, ok := resolver.LocalToNode(pathnorm.New("missing.txt", false), false)
	assert.False(t, ok)
}
