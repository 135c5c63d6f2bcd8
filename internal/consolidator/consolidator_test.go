package consolidator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensync/syncd/internal/pathnorm"
)

func file(p string) pathnorm.Path { return pathnorm.New(p, false) }
func dir(p string) pathnorm.Path  { return pathnorm.New(p, true) }

func create(p pathnorm.Path) RawEvent {
	return RawEvent{Kind: Created, Source: p, IsDir: p.IsDir()}
}

func modify(p pathnorm.Path) RawEvent {
	return RawEvent{Kind: Modified, Source: p, IsDir: p.IsDir()}
}

func del(p pathnorm.Path) RawEvent {
	return RawEvent{Kind: Deleted, Source: p, IsDir: p.IsDir()}
}

func move(src, dst pathnorm.Path) RawEvent {
	return RawEvent{Kind: Moved, Source: src, Dest: dst, IsDir: src.IsDir()}
}

func runCase(t *testing.T, events []RawEvent) []CanonicalEvent {
	t.Helper()

	c := New()
	for _, e := range events {
		c.Push(e)
	}

	return c.Events()
}

func TestDropsDirectoryModify(t *testing.T) {
	got := runCase(t, []RawEvent{modify(dir("folder"))})
	assert.Empty(t, got)
}

func TestKeepsFileModify(t *testing.T) {
	got := runCase(t, []RawEvent{modify(file("folder/donut.txt"))})
	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Modified, Source: file("folder/donut.txt")}, got[0])
}

func TestCreateThenDelete_Cancels(t *testing.T) {
	got := runCase(t, []RawEvent{create(file("file.txt")), del(file("file.txt"))})
	assert.Empty(t, got)
}

func TestDeleteThenCreate_CollapsesToCreate(t *testing.T) {
	got := runCase(t, []RawEvent{del(dir("folder")), create(dir("folder"))})
	require.Len(t, got, 1)
	assert.Equal(t, Created, got[0].Kind)
	assert.Equal(t, dir("folder"), got[0].Source)
}

func TestCreateThenModify_KeepsCreate(t *testing.T) {
	got := runCase(t, []RawEvent{create(file("osfoffline.py")), modify(file("osfoffline.py"))})
	require.Len(t, got, 1)
	assert.Equal(t, Created, got[0].Kind)
}

func TestCreateThenMove_EmitsCreateAtDestination(t *testing.T) {
	got := runCase(t, []RawEvent{create(file("file.txt")), move(file("file.txt"), file("test.txt"))})
	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Created, Source: file("test.txt")}, got[0])
}

func TestCreateMoveDelete_CancelsEntirely(t *testing.T) {
	got := runCase(t, []RawEvent{
		create(file("file.txt")),
		move(file("file.txt"), file("other_file.txt")),
		del(file("other_file.txt")),
	})
	assert.Empty(t, got)
}

func TestMoveThenDeleteDestination_EmitsDeleteAtSource(t *testing.T) {
	got := runCase(t, []RawEvent{move(file("file.txt"), file("other_file.txt")), del(file("other_file.txt"))})
	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Deleted, Source: file("file.txt")}, got[0])
}

// TestMoveChainThroughRelayPath_EmitsDeleteAtOriginalSource covers a
// destination that is itself moved again before being deleted: the relay
// path ("staging") never existed outside this batch, so it must not
// resurface as a spurious Delete once the chain collapses.
func TestMoveChainThroughRelayPath_EmitsDeleteAtOriginalSource(t *testing.T) {
	got := runCase(t, []RawEvent{
		move(file("file.txt"), file("staging.txt")),
		move(file("staging.txt"), file("final.txt")),
		del(file("final.txt")),
	})
	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Deleted, Source: file("file.txt")}, got[0])
}

func TestModifyThenMove_MoveFollowedByRebasedModify(t *testing.T) {
	got := runCase(t, []RawEvent{modify(file("donut.txt")), move(file("donut.txt"), file("bagel.txt"))})
	require.Len(t, got, 2)
	assert.Equal(t, CanonicalEvent{Kind: Moved, Source: file("donut.txt"), Dest: file("bagel.txt")}, got[0])
	assert.Equal(t, CanonicalEvent{Kind: Modified, Source: file("bagel.txt")}, got[1])
}

// TestEditorSaveThroughTempFile is the canonical "Word/Vim save" pattern:
// the editor creates a scratch file, writes to it, swaps it into place over
// the original, then deletes the scratch file it displaced.
func TestEditorSaveThroughTempFile(t *testing.T) {
	tmp := file("~WRL0001.tmp")
	tmp2 := file("~WRL0005.tmp")
	orig := file("file.docx")

	got := runCase(t, []RawEvent{
		create(tmp),
		modify(tmp),
		move(orig, tmp2),
		move(tmp, orig),
		del(tmp2),
	})

	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Created, Source: orig}, got[0])
}

func TestDirectoryDeleteSubsumesDescendants(t *testing.T) {
	got := runCase(t, []RawEvent{
		del(dir("parent")),
		del(dir("parent/child")),
		del(file("parent/file.txt")),
		del(file("parent/child/file.txt")),
		del(dir("parent/child/grandchild")),
		del(file("parent/child/grandchild/file.txt")),
	})

	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Deleted, Source: dir("parent"), IsDir: true}, got[0])
}

func TestDirectoryMoveSubsumesDescendants(t *testing.T) {
	got := runCase(t, []RawEvent{
		move(dir("parent"), dir("george")),
		move(dir("parent/child"), dir("george/child")),
		move(file("parent/file.txt"), file("george/file.txt")),
		move(file("parent/child/file.txt"), file("george/child/file.txt")),
		move(dir("parent/child/grandchild"), dir("george/child/grandchild")),
		move(file("parent/child/grandchild/file.txt"), file("george/child/grandchild/file.txt")),
	})

	require.Len(t, got, 1)
	assert.Equal(t, CanonicalEvent{Kind: Moved, Source: dir("parent"), Dest: dir("george"), IsDir: true}, got[0])
}

func TestIndependentFileMoves_DeepestFirst_NotSubsumed(t *testing.T) {
	got := runCase(t, []RawEvent{
		move(file("file.txt"), file("moved/file.txt")),
		move(file("child/file.txt"), file("moved/child/file.txt")),
		move(file("child/grandchild/file.txt"), file("moved/child/grandchild/file.txt")),
	})

	require.Len(t, got, 3)
	assert.Equal(t, file("child/grandchild/file.txt"), got[0].Source)
	assert.Equal(t, file("child/file.txt"), got[1].Source)
	assert.Equal(t, file("file.txt"), got[2].Source)
}

func TestMoveNotSubsumedWhenDestinationDoesNotMatchRebase(t *testing.T) {
	got := runCase(t, []RawEvent{
		move(file("folder/donut.txt"), file("other_folder/bagel.txt")),
		move(dir("folder"), dir("test")),
	})

	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, Moved, e.Kind)
	}
}

func TestChildModifyThenDirectoryMove_ModifyFollowsSubsumedMove(t *testing.T) {
	got := runCase(t, []RawEvent{
		modify(file("folder/donut.txt")),
		move(file("folder/donut.txt"), file("test/donut.txt")),
		move(dir("folder"), dir("test")),
	})

	require.Len(t, got, 2)
	assert.Equal(t, CanonicalEvent{Kind: Moved, Source: dir("folder"), Dest: dir("test"), IsDir: true}, got[0])
	assert.Equal(t, CanonicalEvent{Kind: Modified, Source: file("test/donut.txt")}, got[1])
}

func TestCreatesNotConsolidated_ShallowestFirst(t *testing.T) {
	got := runCase(t, []RawEvent{create(dir("parent")), create(file("parent/file.txt"))})
	require.Len(t, got, 2)
	assert.Equal(t, dir("parent"), got[0].Source)
	assert.Equal(t, file("parent/file.txt"), got[1].Source)
}

func TestIdempotence(t *testing.T) {
	events := []RawEvent{
		create(file("~WRL0001.tmp")),
		modify(file("~WRL0001.tmp")),
		move(file("file.docx"), file("~WRL0005.tmp")),
		move(file("~WRL0001.tmp"), file("file.docx")),
		del(file("~WRL0005.tmp")),
	}

	first := runCase(t, events)

	second := New()
	for _, e := range first {
		second.Push(e)
	}

	assert.Equal(t, first, second.Events())
}

func TestEmptyBatchProducesEmptyList(t *testing.T) {
	assert.Empty(t, New().Events())
}
