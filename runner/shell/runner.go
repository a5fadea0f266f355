// Package shell runs a compound shell command one statement at a time, publishing a start
// and an end Event per statement on queues that a supervisor drains.
package shell

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	jterrors "github.com/jobtree/jobtree/common/errors"
	"github.com/jobtree/jobtree/common/log/tags"
	"github.com/jobtree/jobtree/common/queue"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/runner/execer"
)

const (
	DefaultInvokeDelay  = 200 * time.Millisecond
	DefaultPollInterval = 100 * time.Millisecond
	DefaultSyncPoll     = 10 * time.Millisecond
)

// ShellArgv runs a statement through /bin/sh.
func ShellArgv(statement string) []string {
	return []string{"/bin/sh", "-c", statement}
}

type Options struct {
	// Split the command line on unquoted ';'. When false it runs as a single statement.
	Split bool
	// Synchronized makes the controller wait for one Sync() per finished statement
	// before starting the next.
	Synchronized bool
	// Timeout aborts a statement that runs longer. Zero means never.
	Timeout time.Duration

	InvokeDelay  time.Duration
	PollInterval time.Duration
	SyncPoll     time.Duration

	Argv func(statement string) []string
	Dir  string
	Tags tags.LogTags
	Stat stats.StatsReceiver
}

func (o *Options) setDefaults() {
	if o.InvokeDelay <= 0 {
		o.InvokeDelay = DefaultInvokeDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SyncPoll <= 0 {
		o.SyncPoll = DefaultSyncPoll
	}
	if o.Argv == nil {
		o.Argv = ShellArgv
	}
	if o.Stat == nil {
		o.Stat = stats.NilStatsReceiver()
	}
}

// Runner executes one command line. Starts receives an Event when each statement's
// process has been spawned, Ends when it has finished, and Done receives a single
// value after the last statement (or after Stop).
type Runner struct {
	Starts *queue.Queue[Event]
	Ends   *queue.Queue[Event]
	Done   *queue.Queue[struct{}]

	ex   execer.Execer
	opts Options

	statements []string
	synced     int64
	invoked    int32
	stopped    int32
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewRunner(ex execer.Execer, opts Options) *Runner {
	opts.setDefaults()
	return &Runner{
		Starts: queue.New[Event](),
		Ends:   queue.New[Event](),
		Done:   queue.New[struct{}](),
		ex:     ex,
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// Invoke starts the controller and returns once it is running plus a short settle delay.
// It does not wait for any statement to finish. A Runner can be invoked once.
func (r *Runner) Invoke(commandLine string) error {
	if !atomic.CompareAndSwapInt32(&r.invoked, 0, 1) {
		return errors.New("runner already invoked")
	}
	r.statements = r.split(commandLine)

	started := make(chan struct{})
	go r.control(r.statements, started)
	<-started

	t := time.NewTimer(r.opts.InvokeDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.stopCh:
	}
	return nil
}

// Statements returns the statements Invoke split the command line into.
func (r *Runner) Statements() []string {
	return r.statements
}

func (r *Runner) split(commandLine string) []string {
	stmts, err := Statements(commandLine, r.opts.Split)
	if err != nil {
		// The shell still gets a chance at lines the splitter can't tokenize, e.g. subshells.
		log.WithFields(r.opts.Tags.Fields()).Warnf("Running command as one statement: %v", err)
	}
	return stmts
}

// Statements breaks commandLine the way a Runner will execute it. When split is false,
// or the line can't be tokenized, the whole line is one statement; the tokenizing error
// is returned alongside that fallback.
func Statements(commandLine string, split bool) ([]string, error) {
	var splitErr error
	if split {
		stmts, err := Split(commandLine)
		if err == nil {
			return stmts, nil
		}
		splitErr = err
	}
	if s := strings.TrimSpace(commandLine); s != "" {
		return []string{s}, splitErr
	}
	return nil, splitErr
}

// Sync releases the controller to start the statement after the one most recently
// finished. Only meaningful with Options.Synchronized.
func (r *Runner) Sync() {
	atomic.AddInt64(&r.synced, 1)
}

// Stop aborts the running statement at its next poll and skips the rest. Done is
// still posted.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		atomic.StoreInt32(&r.stopped, 1)
		close(r.stopCh)
	})
}

func (r *Runner) isStopped() bool {
	return atomic.LoadInt32(&r.stopped) == 1
}

func (r *Runner) control(statements []string, started chan<- struct{}) {
	close(started)
	defer r.Done.Put(struct{}{})

	for i, stmt := range statements {
		if r.isStopped() {
			log.WithFields(r.opts.Tags.Fields()).Infof("Stopped before statement %d of %d", i, len(statements))
			return
		}
		finished := make(chan struct{})
		go r.execute(i, stmt, finished)
		<-finished
		if r.opts.Synchronized && !r.awaitSync(i) {
			return
		}
	}
}

// awaitSync polls until statement i has been synced. It returns false if stopped first.
func (r *Runner) awaitSync(i int) bool {
	for atomic.LoadInt64(&r.synced) <= int64(i) {
		select {
		case <-r.stopCh:
			return false
		case <-time.After(r.opts.SyncPoll):
		}
	}
	return true
}

func (r *Runner) execute(i int, stmt string, finished chan<- struct{}) {
	defer close(finished)

	lt := r.opts.Tags
	lt.Statement = i
	fields := lt.Fields()

	var stdout, stderr bytes.Buffer
	cmd := execer.Command{
		Argv:    r.opts.Argv(stmt),
		Dir:     r.opts.Dir,
		Stdout:  &stdout,
		Stderr:  &stderr,
		LogTags: lt,
	}

	ev := Event{Index: i, Statement: stmt, StartTime: time.Now()}
	r.opts.Stat.Counter(stats.StatementsStartedCounter).Inc(1)
	p, err := r.ex.Exec(cmd)
	if err != nil {
		log.WithFields(fields).Errorf("Could not start statement %q: %v", stmt, err)
		r.Starts.Put(ev)
		end := ev.ended(time.Now(), jterrors.CouldNotExecExitCode)
		end.Stderr = err.Error()
		end.Error = err.Error()
		r.finish(end)
		return
	}

	ev.Pid = p.Pid()
	r.Starts.Put(ev)
	log.WithFields(fields).WithField("pid", ev.Pid).Debugf("Started statement %q", stmt)

	st, timedOut := r.await(p)

	code := st.ExitCode
	if st.State == execer.FAILED && code == 0 {
		code = -1
	}
	if timedOut {
		code = jterrors.TimedOutExitCode
	}
	end := ev.ended(time.Now(), code)
	end.Stdout = stdout.String()
	end.Stderr = stderr.String()
	switch {
	case timedOut:
		end.Error = fmt.Sprintf("timed out after %v", r.opts.Timeout)
	case st.State == execer.FAILED:
		end.Error = st.Error
	}
	r.finish(end)
}

func (r *Runner) finish(end Event) {
	if *end.ReturnCode != 0 {
		r.opts.Stat.Counter(stats.StatementsFailedCounter).Inc(1)
	}
	r.opts.Stat.Counter(stats.StatementsFinishedCounter).Inc(1)
	log.WithFields(r.opts.Tags.Fields()).WithFields(
		log.Fields{
			"statement":  end.Index,
			"pid":        end.Pid,
			"returncode": *end.ReturnCode,
		}).Info("Statement finished")
	r.Ends.Put(end)
}

// await polls p with bounded waits until it finishes, aborting it on timeout or Stop.
func (r *Runner) await(p execer.Process) (execer.ProcessStatus, bool) {
	var deadline time.Time
	if r.opts.Timeout > 0 {
		deadline = time.Now().Add(r.opts.Timeout)
	}
	for {
		st, done := p.Poll(r.opts.PollInterval)
		if done {
			return st, false
		}
		if r.isStopped() {
			return p.Abort(), false
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return p.Abort(), true
		}
	}
}

func (r *Runner) Queues() (starts, ends *queue.Queue[Event], done *queue.Queue[struct{}]) {
	return r.Starts, r.Ends, r.Done
}
