package tree

import (
	"strings"

	"github.com/pkg/errors"

	jterrors "github.com/jobtree/jobtree/common/errors"
)

// Cursor is a current-path pointer into a Tree. Relative paths passed to a Cursor are
// resolved against its current path; absolute paths ignore it.
type Cursor struct {
	t    *Tree
	path []string
}

func (c *Cursor) Pwd() string {
	return join(c.path)
}

// Cd moves the cursor to p. If p does not name an existing node the cursor is left
// where it was and false is returned.
func (c *Cursor) Cd(p string) bool {
	parts := c.resolve(p)
	if !c.t.indexed(join(parts)) || c.t.lookup(parts) == nil {
		return false
	}
	c.path = parts
	return true
}

// Mkdir creates every missing node along p. It is a no-op if p already exists.
func (c *Cursor) Mkdir(p string) error {
	_, err := c.t.mkdirParts(c.resolve(p))
	return err
}

// Touch sets the leaf named by the last component of p, creating intermediate nodes.
// An existing leaf is overwritten.
func (c *Cursor) Touch(p string, v interface{}) error {
	parts := c.resolve(p)
	if len(parts) == 0 {
		return errors.New("cannot touch the root node")
	}
	norm, err := normalize(v)
	if err != nil {
		return errors.Wrapf(err, "touch %s", join(parts))
	}
	dir, err := c.t.mkdirParts(parts[:len(parts)-1])
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if _, ok := dir.children[name]; ok {
		return errors.Errorf("touch %s: a node with that name exists", join(parts))
	}
	dir.leaves[name] = norm
	return nil
}

// Cat returns a copy of the leaf at p, or false if there is none.
func (c *Cursor) Cat(p string) (interface{}, bool) {
	parts := c.resolve(p)
	if len(parts) == 0 {
		return nil, false
	}
	dir := c.t.lookup(parts[:len(parts)-1])
	if dir == nil {
		return nil, false
	}
	v, ok := dir.leaves[parts[len(parts)-1]]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Rm removes the leaf or node named by p and reports whether anything was removed.
func (c *Cursor) Rm(p string) bool {
	parts := c.resolve(p)
	if len(parts) == 0 {
		return false
	}
	dir := c.t.lookup(parts[:len(parts)-1])
	if dir == nil {
		return false
	}
	name := parts[len(parts)-1]
	if _, ok := dir.leaves[name]; ok {
		delete(dir.leaves, name)
		return true
	}
	if _, ok := dir.children[name]; ok {
		c.t.unindexSubtree(join(parts))
		delete(dir.children, name)
		return true
	}
	return false
}

// Ls lists the child node names at p in enumeration order.
func (c *Cursor) Ls(p string) ([]string, bool) {
	n := c.t.lookup(c.resolve(p))
	if n == nil {
		return nil, false
	}
	return n.childNames(), true
}

// Lsf lists the leaf names at p in enumeration order.
func (c *Cursor) Lsf(p string) ([]string, bool) {
	n := c.t.lookup(c.resolve(p))
	if n == nil {
		return nil, false
	}
	return n.leafNames(), true
}

func (c *Cursor) Exists(p string) bool {
	return c.IsDir(p) || c.IsFile(p)
}

func (c *Cursor) IsDir(p string) bool {
	parts := c.resolve(p)
	return c.t.indexed(join(parts)) && c.t.lookup(parts) != nil
}

func (c *Cursor) IsFile(p string) bool {
	_, ok := c.Cat(p)
	return ok
}

// Dump returns the leaf at p, or for a node a nested map of its leaves and children.
func (c *Cursor) Dump(p string) (interface{}, bool) {
	if n := c.t.lookup(c.resolve(p)); n != nil {
		return n.dump(), true
	}
	return c.Cat(p)
}

// Copy deep-copies the subtree (or leaf) at src into dest at destPath, merging with
// whatever already exists there. Nothing is shared between the two trees afterwards.
// When dest is the cursor's own tree, destPath is resolved against this cursor;
// otherwise against dest's default cursor.
func (c *Cursor) Copy(src string, dest *Tree, destPath string) error {
	dc := dest.cwd
	if dest == c.t {
		dc = c
	}
	srcParts := c.resolve(src)
	if n := c.t.lookup(srcParts); n != nil {
		detached := n.clone(nil, "")
		dn, err := dest.mkdirParts(dc.resolve(destPath))
		if err != nil {
			return err
		}
		return dest.merge(dn, detached)
	}
	if v, ok := c.Cat(src); ok {
		return dc.Touch(destPath, v)
	}
	return &jterrors.PathResolutionError{Path: join(srcParts)}
}

// resolve turns p into absolute path components. ".." pops a component and is a
// no-op at root; "." and empty components are ignored.
func (c *Cursor) resolve(p string) []string {
	var stack []string
	if !strings.HasPrefix(p, "/") {
		stack = append(stack, c.path...)
	}
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return stack
}

func join(parts []string) string {
	return "/" + strings.Join(parts, "/")
}

func (t *Tree) lookup(parts []string) *Node {
	n := t.root
	for _, part := range parts {
		child, ok := n.children[part]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (t *Tree) mkdirParts(parts []string) (*Node, error) {
	n := t.root
	for i, part := range parts {
		if _, ok := n.leaves[part]; ok {
			return nil, errors.Errorf("mkdir %s: a leaf with that name exists", join(parts[:i+1]))
		}
		child, ok := n.children[part]
		if !ok {
			child = n.newChild(part)
			t.index.ReplaceOrInsert(child.Path())
		}
		n = child
	}
	return n, nil
}

// merge grafts the detached subtree src into dst. src must not be referenced elsewhere.
func (t *Tree) merge(dst, src *Node) error {
	for name, v := range src.leaves {
		if _, ok := dst.children[name]; ok {
			return errors.Errorf("copy into %s: %q is a node, not a leaf", dst.Path(), name)
		}
		dst.leaves[name] = v
	}
	for name, child := range src.children {
		if _, ok := dst.leaves[name]; ok {
			return errors.Errorf("copy into %s: %q is a leaf, not a node", dst.Path(), name)
		}
		if existing, ok := dst.children[name]; ok {
			if err := t.merge(existing, child); err != nil {
				return err
			}
			continue
		}
		child.parent = dst
		child.name = name
		dst.children[name] = child
		t.indexSubtree(child)
	}
	return nil
}
