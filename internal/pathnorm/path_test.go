package pathnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NormalizesSlashesPreservesCase(t *testing.T) {
	p := New(`Foo\bar\baz.txt`, false)
	assert.Equal(t, "Foo/bar/baz.txt", p.String())
	assert.False(t, p.IsDir())
}

func TestNew_RootIsEmpty(t *testing.T) {
	p := New("/", true)
	assert.True(t, p.IsRoot())
	assert.Equal(t, "", p.String())
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 0, New("", true).Depth())
	assert.Equal(t, 1, New("a", false).Depth())
	assert.Equal(t, 3, New("a/b/c", false).Depth())
}

func TestEqual_IgnoresIsDir(t *testing.T) {
	a := New("foo/bar", true)
	b := New("foo/bar", false)
	assert.True(t, a.Equal(b))
}

func TestHasPrefixDir(t *testing.T) {
	parent := New("parent", true)
	assert.True(t, New("parent/child", false).HasPrefixDir(parent))
	assert.False(t, New("parent", true).HasPrefixDir(parent))
	assert.False(t, New("parentless/child", false).HasPrefixDir(parent))

	root := New("", true)
	assert.True(t, New("a", false).HasPrefixDir(root))
}

func TestRebase(t *testing.T) {
	oldPrefix := New("parent", true)
	newPrefix := New("george", true)
	child := New("parent/child/file.txt", false)

	rebased := child.Rebase(oldPrefix, newPrefix)
	assert.Equal(t, "george/child/file.txt", rebased.String())
}

func TestRebase_ToRoot(t *testing.T) {
	oldPrefix := New("parent", true)
	root := New("", true)
	child := New("parent/child.txt", false)

	rebased := child.Rebase(oldPrefix, root)
	assert.Equal(t, "child.txt", rebased.String())
}
