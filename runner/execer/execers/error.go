package execers

import (
	"github.com/jobtree/jobtree/runner/execer"
)

// ErrExecer fails every Exec with Err, standing in for a command that cannot be started.
type ErrExecer struct {
	Err error
}

func (e *ErrExecer) Exec(command execer.Command) (execer.Process, error) {
	return nil, e.Err
}
