package tree

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	jterrors "github.com/jobtree/jobtree/common/errors"
)

const (
	dirMode  = 0755
	fileMode = 0644
)

// Save mirrors the subtree at p onto diskRoot: one directory per node and one JSON
// file per leaf. diskRoot itself stands for the node at p.
func (c *Cursor) Save(p, diskRoot string) error {
	parts := c.resolve(p)
	n := c.t.lookup(parts)
	if n == nil {
		return &jterrors.PathResolutionError{Path: join(parts)}
	}
	if err := writeNode(n, diskRoot); err != nil {
		return &jterrors.PersistenceError{Op: "save", Dir: diskRoot, Err: err}
	}
	return nil
}

func writeNode(n *Node, dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return err
	}
	for name, v := range n.leaves {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encoding leaf %s", filepath.Join(dir, name))
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, fileMode); err != nil {
			return err
		}
	}
	for name, child := range n.children {
		if err := writeNode(child, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Load builds a Tree purely from the directory layout under diskRoot.
func Load(diskRoot string) (*Tree, error) {
	t := New()
	if err := t.LoadAt("/", diskRoot); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadAt merges the mirror at diskRoot into t at p, creating p if needed.
func (t *Tree) LoadAt(p, diskRoot string) error {
	n, err := t.mkdirParts(t.cwd.resolve(p))
	if err != nil {
		return err
	}
	if err := t.readDir(n, diskRoot); err != nil {
		return &jterrors.PersistenceError{Op: "load", Dir: diskRoot, Err: err}
	}
	return nil
}

func (t *Tree) readDir(n *Node, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		full := filepath.Join(dir, name)
		if e.IsDir() {
			if _, ok := n.leaves[name]; ok {
				return errors.Errorf("%s: directory shadows a leaf", full)
			}
			child, ok := n.children[name]
			if !ok {
				child = n.newChild(name)
				t.index.ReplaceOrInsert(child.Path())
			}
			if err := t.readDir(child, full); err != nil {
				return err
			}
			continue
		}
		b, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		var v interface{}
		if err := json.Unmarshal(b, &v); err != nil {
			return errors.Wrapf(err, "decoding leaf %s", full)
		}
		if _, ok := n.children[name]; ok {
			return errors.Errorf("%s: file shadows a node", full)
		}
		n.leaves[name] = v
	}
	return nil
}
