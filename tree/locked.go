package tree

import (
	"sync"
)

// Locked serializes access to one Tree. Every navigate+read/write sequence that must
// not interleave with another goroutine's runs inside a single Do call.
type Locked struct {
	mu sync.Mutex
	t  *Tree
}

func NewLocked(t *Tree) *Locked {
	return &Locked{t: t}
}

// Do runs fn with exclusive access to the tree.
func (l *Locked) Do(fn func(t *Tree) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.t)
}

// View runs fn under the same lock as Do. It exists to mark read-only sections.
func (l *Locked) View(fn func(t *Tree) error) error {
	return l.Do(fn)
}

// Snapshot returns a deep copy of the whole tree taken inside one critical section.
func (l *Locked) Snapshot() (*Tree, error) {
	out := New()
	err := l.Do(func(t *Tree) error {
		return t.NewCursor().Copy("/", out, "/")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
