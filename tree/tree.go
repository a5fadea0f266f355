// Package tree implements the hierarchical job database: an addressable tree of nodes,
// each holding named child nodes and named JSON leaves.
//
// A Tree is not safe for concurrent use. Callers sharing a Tree between goroutines wrap
// every multi-step sequence in one critical section, typically through Locked.
// Each caller that needs a current directory should take its own Cursor rather than
// moving the Tree's default one.
package tree

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/btree"
)

const indexDegree = 16

// Tree owns a root node and an ordered index of every node path that exists.
type Tree struct {
	root  *Node
	index *btree.BTreeG[string]
	cwd   *Cursor
}

func New() *Tree {
	t := &Tree{
		root:  newRoot(),
		index: btree.NewG[string](indexDegree, func(a, b string) bool { return a < b }),
	}
	t.index.ReplaceOrInsert("/")
	t.cwd = t.NewCursor()
	return t
}

// NewCursor returns an independent current-path pointer positioned at "/".
func (t *Tree) NewCursor() *Cursor {
	return &Cursor{t: t}
}

// Paths lists every indexed node path in sorted order.
func (t *Tree) Paths() []string {
	var out []string
	t.index.Ascend(func(p string) bool {
		out = append(out, p)
		return true
	})
	return out
}

func (t *Tree) indexed(p string) bool {
	return t.index.Has(p)
}

func (t *Tree) indexSubtree(n *Node) {
	t.index.ReplaceOrInsert(n.Path())
	for _, c := range n.children {
		t.indexSubtree(c)
	}
}

func (t *Tree) unindexSubtree(p string) {
	t.index.Delete(p)
	prefix := p + "/"
	var doomed []string
	t.index.AscendGreaterOrEqual(prefix, func(item string) bool {
		if !strings.HasPrefix(item, prefix) {
			return false
		}
		doomed = append(doomed, item)
		return true
	})
	for _, d := range doomed {
		t.index.Delete(d)
	}
}

var ordinalRe = regexp.MustCompile(`^_([0-9]+)$`)

// ResolveOrdinal rewrites a leading "_N" segment of an absolute path to the name of the
// Nth child of root in enumeration order. Paths without the sugar, or with an out of
// range ordinal, are returned unchanged.
func (t *Tree) ResolveOrdinal(p string) string {
	if !strings.HasPrefix(p, "/") {
		return p
	}
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)
	m := ordinalRe.FindStringSubmatch(parts[0])
	if m == nil {
		return p
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return p
	}
	names := t.root.childNames()
	if n >= len(names) {
		return p
	}
	parts[0] = names[n]
	return "/" + strings.Join(parts, "/")
}

// The methods below operate relative to the Tree's default cursor.

func (t *Tree) Cd(p string) bool                            { return t.cwd.Cd(p) }
func (t *Tree) Pwd() string                                 { return t.cwd.Pwd() }
func (t *Tree) Mkdir(p string) error                        { return t.cwd.Mkdir(p) }
func (t *Tree) Touch(p string, v interface{}) error         { return t.cwd.Touch(p, v) }
func (t *Tree) Cat(p string) (interface{}, bool)            { return t.cwd.Cat(p) }
func (t *Tree) Rm(p string) bool                            { return t.cwd.Rm(p) }
func (t *Tree) Ls(p string) ([]string, bool)                { return t.cwd.Ls(p) }
func (t *Tree) Lsf(p string) ([]string, bool)               { return t.cwd.Lsf(p) }
func (t *Tree) Exists(p string) bool                        { return t.cwd.Exists(p) }
func (t *Tree) IsDir(p string) bool                         { return t.cwd.IsDir(p) }
func (t *Tree) IsFile(p string) bool                        { return t.cwd.IsFile(p) }
func (t *Tree) Dump(p string) (interface{}, bool)           { return t.cwd.Dump(p) }
func (t *Tree) Copy(src string, dest *Tree, p string) error { return t.cwd.Copy(src, dest, p) }
func (t *Tree) Save(p, diskRoot string) error               { return t.cwd.Save(p, diskRoot) }

// Children returns the absolute paths of the child nodes directly under p.
func (t *Tree) Children(p string) ([]string, bool) {
	parts := t.cwd.resolve(p)
	n := t.lookup(parts)
	if n == nil {
		return nil, false
	}
	names := n.childNames()
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, join(append(parts[:len(parts):len(parts)], name)))
	}
	return out, true
}

// Walk calls fn for p and every indexed node path below it, in sorted order, until fn
// returns false.
func (t *Tree) Walk(p string, fn func(path string) bool) {
	root := join(t.cwd.resolve(p))
	if !t.indexed(root) {
		return
	}
	if !fn(root) {
		return
	}
	prefix := root + "/"
	if root == "/" {
		prefix = "/"
	}
	t.index.AscendGreaterOrEqual(prefix, func(item string) bool {
		if item == root {
			return true
		}
		if !strings.HasPrefix(item, prefix) {
			return false
		}
		return fn(item)
	})
}
