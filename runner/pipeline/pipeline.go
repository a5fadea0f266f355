// Package pipeline relays one runner's lifecycle events to a sink, in order.
package pipeline

import (
	"fmt"
	"time"

	"github.com/jobtree/jobtree/common/queue"
	"github.com/jobtree/jobtree/runner/shell"
)

const defaultDonePoll = 50 * time.Millisecond

// Sink receives relayed events. Started is called for statement i before Ended for i,
// and Ended for i before Started for i+1.
type Sink interface {
	Started(ev shell.Event) error
	Ended(ev shell.Event) error
}

// Runner is the part of shell.Runner the pipeline drives.
type Runner interface {
	Invoke(commandLine string) error
	Sync()
	Stop()
	Queues() (starts, ends *queue.Queue[shell.Event], done *queue.Queue[struct{}])
}

// ErrOutOfOrder reports an event that would break the started-before-ended,
// exactly-once, contiguous-index guarantee.
type ErrOutOfOrder struct {
	Expected int
	Got      int
	Kind     string
}

func (e *ErrOutOfOrder) Error() string {
	return fmt.Sprintf("%s event out of order: expected index %d, got %d", e.Kind, e.Expected, e.Got)
}

type Pipeline struct {
	runner   Runner
	DonePoll time.Duration
}

func New(runner Runner) *Pipeline {
	return &Pipeline{runner: runner, DonePoll: defaultDonePoll}
}

// Run invokes the runner on commandLine and relays every start and end event to sink
// until the runner reports it is done. It returns the number of statements relayed.
// A sink error stops the runner; Run still drains the remaining events so the runner's
// goroutines finish.
func (p *Pipeline) Run(commandLine string, sink Sink) (int, error) {
	if err := p.runner.Invoke(commandLine); err != nil {
		return 0, err
	}
	starts, ends, done := p.runner.Queues()

	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
			p.runner.Stop()
		}
	}

	next := 0
	finished := false
	for {
		if !finished {
			_, finished = done.TryGet()
		}
		if finished && starts.Len() == 0 {
			return next, firstErr
		}
		start, ok := starts.GetTimeout(p.DonePoll)
		if !ok {
			continue
		}
		if start.Index != next || start.IsEnd() {
			fail(&ErrOutOfOrder{Expected: next, Got: start.Index, Kind: "start"})
		} else if firstErr == nil {
			if err := sink.Started(start); err != nil {
				fail(err)
			}
		}

		end := ends.Get()
		if end.Index != next || !end.IsEnd() {
			fail(&ErrOutOfOrder{Expected: next, Got: end.Index, Kind: "end"})
		} else if firstErr == nil {
			if err := sink.Ended(end); err != nil {
				fail(err)
			}
		}
		next++
		p.runner.Sync()
	}
}
