package execer

import (
	"io"
	"time"

	"github.com/jobtree/jobtree/common/log/tags"
)

// Execer lets you run one Unix command. It knows nothing about jobs or the tree;
// it's just a way to run a Unix process (or fake it).

type Command struct {
	Argv   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	tags.LogTags
}

type ProcessState int

const (
	UNKNOWN ProcessState = iota
	RUNNING
	COMPLETE
	FAILED
)

func (s ProcessState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s ProcessState) String() string {
	switch s {
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type Execer interface {
	Exec(command Command) (Process, error)
}

type Process interface {
	Pid() int
	// Poll waits at most timeout for the process to finish. The bool reports whether
	// the returned status is final.
	Poll(timeout time.Duration) (ProcessStatus, bool)
	Wait() ProcessStatus
	Abort() ProcessStatus
}

type ProcessStatus struct {
	State    ProcessState
	ExitCode int
	Error    string
}
