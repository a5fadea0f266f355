package tree

import (
	"sort"
	"strings"
)

// Node is one vertex of a Tree. Child nodes and leaves share one namespace:
// a name is either a child or a leaf, never both.
type Node struct {
	name     string
	parent   *Node // root is its own parent
	children map[string]*Node
	leaves   map[string]interface{}
}

func newRoot() *Node {
	n := &Node{
		children: make(map[string]*Node),
		leaves:   make(map[string]interface{}),
	}
	n.parent = n
	return n
}

func (n *Node) newChild(name string) *Node {
	c := &Node{
		name:     name,
		parent:   n,
		children: make(map[string]*Node),
		leaves:   make(map[string]interface{}),
	}
	n.children[name] = c
	return c
}

func (n *Node) isRoot() bool {
	return n.parent == n
}

// Path reconstructs the absolute path of n by walking parent references.
func (n *Node) Path() string {
	if n.isRoot() {
		return "/"
	}
	var parts []string
	for cur := n; !cur.isRoot(); cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func (n *Node) childNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Node) leafNames() []string {
	names := make([]string, 0, len(n.leaves))
	for name := range n.leaves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone deep-copies n and its subtree under parent. Passing nil detaches the copy.
func (n *Node) clone(parent *Node, name string) *Node {
	c := &Node{
		name:     name,
		parent:   parent,
		children: make(map[string]*Node, len(n.children)),
		leaves:   make(map[string]interface{}, len(n.leaves)),
	}
	if parent == nil {
		c.parent = c
	}
	for k, v := range n.leaves {
		c.leaves[k] = cloneValue(v)
	}
	for k, child := range n.children {
		c.children[k] = child.clone(c, k)
	}
	return c
}

func (n *Node) dump() map[string]interface{} {
	out := make(map[string]interface{}, len(n.children)+len(n.leaves))
	for k, v := range n.leaves {
		out[k] = cloneValue(v)
	}
	for k, c := range n.children {
		out[k] = c.dump()
	}
	return out
}
