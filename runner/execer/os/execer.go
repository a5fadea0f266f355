package os

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/runner/execer"
)

// DefaultKillGrace is how long Abort waits after SIGTERM before sending SIGKILL.
const DefaultKillGrace = 10 * time.Second

// Implements runner/execer.Execer
type osExecer struct {
	killGrace time.Duration
}

// NewExecer returns an Execer that starts real processes, each in its own process group.
// A zero killGrace means DefaultKillGrace.
func NewExecer(killGrace time.Duration) execer.Execer {
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &osExecer{killGrace: killGrace}
}

func (e *osExecer) Exec(command execer.Command) (execer.Process, error) {
	if len(command.Argv) == 0 {
		return nil, fmt.Errorf("No command specified.")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = os.Environ()

	// Sets pgid of all child processes to cmd's pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, stderr := command.Stdout, command.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	// Use pipes due to possible hang in process.Wait().
	stdErrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	stdOutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		cmd:       cmd,
		done:      make(chan struct{}),
		killGrace: e.killGrace,
		LogTags:   command.LogTags,
	}
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		io.Copy(stderr, stdErrPipe)
	}()
	go func() {
		defer p.wg.Done()
		io.Copy(stdout, stdOutPipe)
	}()
	go p.wait()

	log.WithFields(p.Fields()).WithField("pid", cmd.Process.Pid).Debug("Started process")
	return p, nil
}
