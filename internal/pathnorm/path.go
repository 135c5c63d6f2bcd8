// Package pathnorm implements the Path data model (SPEC_FULL.md §3): a
// rooted, normalized sequence of name segments relative to the sync root.
// Normalization mirrors the teacher's nfcNormalize helper in
// internal/sync/observer_local.go — forward slashes and NFC Unicode form —
// so that two paths referring to the same filesystem entry always compare
// equal regardless of platform or decomposition form.
package pathnorm

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Path is a normalized, slash-separated path relative to the sync root.
// Equality is bytewise on Clean. IsDir is metadata describing whether the
// path denotes a directory-typed entry; it is not encoded in Clean itself
// (spec.md §3: "a path is either directory-typed ... or file-typed").
type Path struct {
	clean string
	isDir bool
}

// New normalizes raw (an OS-reported path, forward or backward slashes,
// possibly NFD-decomposed Unicode) into a Path relative to the sync root.
func New(raw string, isDir bool) Path {
	slashed := strings.ReplaceAll(raw, `\`, "/")
	nfc := norm.NFC.String(slashed)
	cleaned := path.Clean("/" + nfc)

	if cleaned == "/" {
		cleaned = ""
	} else {
		cleaned = strings.TrimPrefix(cleaned, "/")
	}

	return Path{clean: cleaned, isDir: isDir}
}

// String returns the normalized form, e.g. "Foo/bar/baz.txt".
func (p Path) String() string { return p.clean }

// IsDir reports whether p denotes a directory-typed entry.
func (p Path) IsDir() bool { return p.isDir }

// IsRoot reports whether p is the sync root itself.
func (p Path) IsRoot() bool { return p.clean == "" }

// Depth returns the number of name segments in p ("" has depth 0).
func (p Path) Depth() int {
	if p.clean == "" {
		return 0
	}

	return strings.Count(p.clean, "/") + 1
}

// Base returns the final name segment.
func (p Path) Base() string {
	return path.Base(p.clean)
}

// Equal reports whether p and other denote the same normalized path. IsDir
// is ignored — the same location cannot simultaneously be file-typed and
// directory-typed in a single consistent tree.
func (p Path) Equal(other Path) bool {
	return p.clean == other.clean
}

// HasPrefixDir reports whether p lies strictly under the directory dir,
// i.e. p is dir itself plus at least one more segment. Used by the
// consolidator for subtree-subsumption checks (spec.md §4.1 policy 2).
func (p Path) HasPrefixDir(dir Path) bool {
	if dir.clean == "" {
		return p.clean != ""
	}

	return strings.HasPrefix(p.clean, dir.clean+"/")
}

// Rebase returns p with the leading oldPrefix directory replaced by
// newPrefix, used when rewriting a descendant's path under a renamed
// ancestor (spec.md §4.1 policy 2 and 4).
func (p Path) Rebase(oldPrefix, newPrefix Path) Path {
	if oldPrefix.clean == "" {
		if newPrefix.clean == "" {
			return p
		}

		return Path{clean: newPrefix.clean + "/" + p.clean, isDir: p.isDir}
	}

	rest := strings.TrimPrefix(p.clean, oldPrefix.clean+"/")
	if newPrefix.clean == "" {
		return Path{clean: rest, isDir: p.isDir}
	}

	return Path{clean: newPrefix.clean + "/" + rest, isDir: p.isDir}
}
