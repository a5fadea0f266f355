package os

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/jobtree/jobtree/common/log/tags"
	"github.com/jobtree/jobtree/runner/execer"
)

// Implements runner/execer.Process
type process struct {
	cmd       *exec.Cmd
	wg        sync.WaitGroup
	done      chan struct{}
	killGrace time.Duration

	mutex   sync.Mutex
	result  *execer.ProcessStatus
	aborted string
	tags.LogTags
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

// wait reaps the process once its output has drained and publishes the result.
// If the command fails and we can get the exit code from the command, the status is
// COMPLETE with the failing exit code; if we cannot, it is FAILED with the error.
func (p *process) wait() {
	p.wg.Wait()
	err := p.cmd.Wait()

	result := execer.ProcessStatus{State: execer.COMPLETE}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
				if status.Signaled() {
					result.ExitCode = 128 + int(status.Signal())
				}
			} else {
				result.State = execer.FAILED
				result.Error = "Could not find WaitStatus from exiterr.Sys()"
			}
		} else {
			result.State = execer.FAILED
			result.Error = err.Error()
		}
	}

	p.mutex.Lock()
	if p.aborted != "" {
		result.State = execer.FAILED
		result.Error = p.aborted
	}
	p.result = &result
	p.mutex.Unlock()
	close(p.done)

	log.WithFields(p.Fields()).WithFields(
		log.Fields{
			"pid":      p.cmd.Process.Pid,
			"exitCode": result.ExitCode,
			"state":    result.State,
		}).Debug("Finished waiting for process")
}

func (p *process) status() execer.ProcessStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return *p.result
}

func (p *process) Poll(timeout time.Duration) (execer.ProcessStatus, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return p.status(), true
	case <-t.C:
		return execer.ProcessStatus{State: execer.RUNNING}, false
	}
}

func (p *process) Wait() execer.ProcessStatus {
	<-p.done
	return p.status()
}

// Abort sends SIGTERM to the process group, allowing for graceful exit, then SIGKILL
// once the grace period has passed.
func (p *process) Abort() execer.ProcessStatus {
	select {
	case <-p.done:
		return p.status()
	default:
	}

	pid := p.cmd.Process.Pid
	fields := p.Fields()
	fields["pid"] = pid

	p.mutex.Lock()
	p.aborted = "Aborted (SIGTERM)"
	p.mutex.Unlock()
	log.WithFields(fields).Info("Aborting process via SIGTERM")
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		log.WithFields(fields).Errorf("Error aborting command via SIGTERM: %s", err)
	}

	t := time.NewTimer(p.killGrace)
	defer t.Stop()
	select {
	case <-p.done:
		return p.status()
	case <-t.C:
	}

	p.mutex.Lock()
	p.aborted = "Aborted (SIGKILL)"
	p.mutex.Unlock()
	log.WithFields(fields).Infof("Process still running after %v, sending SIGKILL", p.killGrace)
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		log.WithFields(fields).Errorf("Error killing process group: %s", err)
	}
	<-p.done
	return p.status()
}
