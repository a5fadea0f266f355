package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobtree/jobtree/common/queue"
	osexec "github.com/jobtree/jobtree/runner/execer/os"
	"github.com/jobtree/jobtree/runner/execer/execers"
	"github.com/jobtree/jobtree/runner/shell"
)

type recordingSink struct {
	calls  []string
	events []shell.Event
	failOn string
}

func (s *recordingSink) Started(ev shell.Event) error {
	s.calls = append(s.calls, "start")
	s.events = append(s.events, ev)
	if s.failOn == "start" {
		return errors.New("sink failed")
	}
	return nil
}

func (s *recordingSink) Ended(ev shell.Event) error {
	s.calls = append(s.calls, "end")
	s.events = append(s.events, ev)
	return nil
}

func TestRelayOrder(t *testing.T) {
	r := shell.NewRunner(osexec.NewExecer(0), shell.Options{Split: true, Synchronized: true})
	sink := &recordingSink{}
	n, err := New(r).Run("echo A; echo B; echo C", sink)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"start", "end", "start", "end", "start", "end"}, sink.calls)
	for i, ev := range sink.events {
		require.Equal(t, i/2, ev.Index)
		require.Equal(t, i%2 == 1, ev.IsEnd())
	}
	require.Equal(t, "C\n", sink.events[5].Stdout)
}

func TestRelayWithoutGating(t *testing.T) {
	r := shell.NewRunner(execers.NewSimExecer(), shell.Options{
		Split:        true,
		InvokeDelay:  time.Millisecond,
		PollInterval: time.Millisecond,
		Argv:         execers.SimArgv,
	})
	sink := &recordingSink{}
	n, err := New(r).Run("complete 0; complete 1; stdout x", sink)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 1, *sink.events[3].ReturnCode)
}

func TestEmptyCommand(t *testing.T) {
	r := shell.NewRunner(execers.NewSimExecer(), shell.Options{Split: true, InvokeDelay: time.Millisecond})
	sink := &recordingSink{}
	n, err := New(r).Run("  ", sink)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, sink.calls)
}

func TestSinkErrorStopsRunner(t *testing.T) {
	r := shell.NewRunner(execers.NewSimExecer(), shell.Options{
		Split:        true,
		Synchronized: true,
		InvokeDelay:  time.Millisecond,
		PollInterval: time.Millisecond,
		Argv:         execers.SimArgv,
	})
	sink := &recordingSink{failOn: "start"}
	n, err := New(r).Run("complete 0; complete 0; complete 0", sink)
	require.EqualError(t, err, "sink failed")
	require.Equal(t, 1, n)
}

// fakeRunner replays canned events.
type fakeRunner struct {
	starts, ends *queue.Queue[shell.Event]
	done         *queue.Queue[struct{}]
	syncs        int
	stopped      bool
}

func newFakeRunner(starts, ends []int) *fakeRunner {
	f := &fakeRunner{starts: queue.New[shell.Event](), ends: queue.New[shell.Event](), done: queue.New[struct{}]()}
	for _, i := range starts {
		f.starts.Put(shell.Event{Index: i})
	}
	code := 0
	for _, i := range ends {
		f.ends.Put(shell.Event{Index: i, ReturnCode: &code})
	}
	f.done.Put(struct{}{})
	return f
}

func (f *fakeRunner) Invoke(string) error { return nil }
func (f *fakeRunner) Sync()               { f.syncs++ }
func (f *fakeRunner) Stop()               { f.stopped = true }
func (f *fakeRunner) Queues() (*queue.Queue[shell.Event], *queue.Queue[shell.Event], *queue.Queue[struct{}]) {
	return f.starts, f.ends, f.done
}

func TestOutOfOrderDetected(t *testing.T) {
	f := newFakeRunner([]int{0, 2}, []int{0, 2})
	p := New(f)
	p.DonePoll = time.Millisecond
	sink := &recordingSink{}
	_, err := p.Run("", sink)
	var ooo *ErrOutOfOrder
	require.ErrorAs(t, err, &ooo)
	require.Equal(t, 1, ooo.Expected)
	require.Equal(t, 2, ooo.Got)
	require.True(t, f.stopped)
	require.Equal(t, []string{"start", "end"}, sink.calls)
}

func TestSyncOncePerStatement(t *testing.T) {
	f := newFakeRunner([]int{0, 1, 2}, []int{0, 1, 2})
	p := New(f)
	p.DonePoll = time.Millisecond
	n, err := p.Run("", &recordingSink{})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 3, f.syncs)
}
