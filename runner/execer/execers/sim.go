package execers

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobtree/jobtree/runner/execer"
)

func NewSimExecer() *SimExecer {
	return &SimExecer{resumeCh: make(chan struct{})}
}

type SimExecer struct {
	resumeCh chan struct{}
	pids     int64
}

// SimArgv turns one statement into sim steps by splitting on ','.
// "stdout A, complete 0" becomes ["stdout A", "complete 0"].
func SimArgv(statement string) []string {
	var argv []string
	for _, s := range strings.Split(statement, ",") {
		if s = strings.TrimSpace(s); s != "" {
			argv = append(argv, s)
		}
	}
	return argv
}

// SimExecer execs by simulating running argv.
// each arg in command.argv is simulated in order.
// valid args are:
// complete <exitcode int>
//   complete with exitcode
// pause
//   pause until SimExecer.Resume() is called
// sleep <millis int>
//   sleep for millis milliseconds
// stdout <message>
//   put <message> in stdout in the response
// stderr <message>
//   put <message> in stderr in the response
func (e *SimExecer) Exec(command execer.Command) (execer.Process, error) {
	steps, err := e.parse(command.Argv)
	if err != nil {
		return nil, err
	}
	r := &simProcess{
		pid:    int(atomic.AddInt64(&e.pids, 1)),
		stdout: command.Stdout,
		stderr: command.Stderr,
		doneCh: make(chan struct{}),
	}
	r.status.State = execer.RUNNING
	go r.run(steps)
	return r, nil
}

func (e *SimExecer) Resume() {
	e.resumeCh <- struct{}{}
}

// parse parses an argv into sim steps
func (e *SimExecer) parse(argv []string) (steps []simStep, err error) {
	for _, arg := range argv {
		s, err := e.parseArg(arg)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (e *SimExecer) parseArg(arg string) (simStep, error) {
	if strings.HasPrefix(arg, "#") {
		return &noopStep{}, nil
	}
	splits := strings.SplitN(arg, " ", 2)
	opcode, rest := splits[0], ""
	if len(splits) == 2 {
		rest = splits[1]
	}
	switch opcode {
	case "complete":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in complete <n>:%s", err.Error())
		}
		return &completeStep{i}, nil
	case "pause":
		return &pauseStep{e.resumeCh}, nil
	case "sleep":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in sleep <n>:%s", err.Error())
		}
		return &sleepStep{time.Duration(i) * time.Millisecond}, nil
	case "stdout":
		return &stdoutStep{rest + "\n"}, nil
	case "stderr":
		return &stderrStep{rest + "\n"}, nil
	}
	return nil, fmt.Errorf("can't simulate arg: %v", arg)
}

type simProcess struct {
	pid    int
	status execer.ProcessStatus
	doneCh chan struct{}
	mu     sync.Mutex

	stdout io.Writer
	stderr io.Writer
}

func (p *simProcess) Pid() int {
	return p.pid
}

func (p *simProcess) Poll(timeout time.Duration) (execer.ProcessStatus, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.doneCh:
		return p.getStatus(), true
	case <-t.C:
		return p.getStatus(), false
	}
}

func (p *simProcess) Wait() execer.ProcessStatus {
	<-p.doneCh
	return p.getStatus()
}

func (p *simProcess) Abort() execer.ProcessStatus {
	p.setStatus(execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: "Aborted"})
	return p.getStatus()
}

func (p *simProcess) setStatus(status execer.ProcessStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.State.IsDone() {
		return
	}
	p.status = status
	if p.status.State.IsDone() {
		close(p.doneCh)
	}
}

func (p *simProcess) getStatus() execer.ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *simProcess) run(steps []simStep) {
	for _, step := range steps {
		status := p.getStatus()
		if status.State.IsDone() {
			return
		}
		p.setStatus(step.run(status, p))
	}
	// Running off the end of the steps behaves like a process exiting cleanly.
	p.setStatus(execer.ProcessStatus{State: execer.COMPLETE})
}

type simStep interface {
	run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus
}

type completeStep struct {
	exitCode int
}

func (s *completeStep) run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus {
	status.ExitCode = s.exitCode
	status.State = execer.COMPLETE
	return status
}

type pauseStep struct {
	ch chan struct{}
}

func (s *pauseStep) run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus {
	// wait for the first of being aborted or SimExecer.Resume()
	select {
	case <-p.doneCh:
	case <-s.ch:
	}
	return status
}

type sleepStep struct {
	duration time.Duration
}

func (s *sleepStep) run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus {
	t := time.NewTimer(s.duration)
	defer t.Stop()
	select {
	case <-p.doneCh:
	case <-t.C:
	}
	return status
}

type stdoutStep struct {
	output string
}

func (s *stdoutStep) run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus {
	if p.stdout != nil {
		p.stdout.Write([]byte(s.output))
	}
	return status
}

type stderrStep struct {
	output string
}

func (s *stderrStep) run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus {
	if p.stderr != nil {
		p.stderr.Write([]byte(s.output))
	}
	return status
}

type noopStep struct{}

func (s *noopStep) run(status execer.ProcessStatus, p *simProcess) execer.ProcessStatus {
	return status
}
