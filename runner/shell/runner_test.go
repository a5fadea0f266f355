package shell

import (
	"errors"
	"strings"
	"testing"
	"time"

	osexec "github.com/jobtree/jobtree/runner/execer/os"
	"github.com/jobtree/jobtree/runner/execer/execers"
)

func simOpts() Options {
	return Options{
		Split:        true,
		InvokeDelay:  time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		Argv:         execers.SimArgv,
	}
}

func waitDone(t *testing.T, r *Runner) {
	if _, ok := r.Done.GetTimeout(5 * time.Second); !ok {
		t.Fatalf("runner never posted done")
	}
}

func TestStatementOrdering(t *testing.T) {
	r := NewRunner(osexec.NewExecer(0), Options{Split: true})
	if err := r.Invoke("echo A; echo B; echo C"); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	waitDone(t, r)

	for i, want := range []string{"A", "B", "C"} {
		start, ok := r.Starts.TryGet()
		if !ok || start.Index != i || start.IsEnd() {
			t.Fatalf("expected start event %d, got %+v (ok=%v)", i, start, ok)
		}
		if start.Pid <= 0 || start.StartTime.IsZero() {
			t.Fatalf("start event missing pid or time: %+v", start)
		}
		end, ok := r.Ends.TryGet()
		if !ok || end.Index != i || !end.IsEnd() {
			t.Fatalf("expected end event %d, got %+v (ok=%v)", i, end, ok)
		}
		if *end.ReturnCode != 0 || end.Stdout != want+"\n" {
			t.Fatalf("unexpected end event %+v", end)
		}
		if end.Pid != start.Pid || end.EndTime.Before(start.StartTime) {
			t.Fatalf("end event does not match its start: %+v vs %+v", end, start)
		}
	}
	if r.Starts.Len() != 0 || r.Ends.Len() != 0 {
		t.Fatalf("unexpected extra events")
	}
}

func TestEndsAreSequential(t *testing.T) {
	r := NewRunner(execers.NewSimExecer(), simOpts())
	r.Invoke("sleep 30, stdout first; stdout second; sleep 10, complete 0")
	waitDone(t, r)
	var prev time.Time
	for i := 0; i < 3; i++ {
		end := r.Ends.Get()
		if end.Index != i {
			t.Fatalf("end %d observed out of order: %d", i, end.Index)
		}
		if end.EndTime.Before(prev) {
			t.Fatalf("end %d finished before end %d", i, i-1)
		}
		prev = *end.EndTime
	}
}

func TestFailureDoesNotStopLaterStatements(t *testing.T) {
	r := NewRunner(execers.NewSimExecer(), simOpts())
	r.Invoke("complete 0; stderr bad, complete 3; stdout still here")
	waitDone(t, r)
	codes := []int{}
	for r.Ends.Len() > 0 {
		codes = append(codes, *r.Ends.Get().ReturnCode)
	}
	if len(codes) != 3 || codes[0] != 0 || codes[1] != 3 || codes[2] != 0 {
		t.Fatalf("unexpected return codes %v", codes)
	}
}

func TestSynchronizedGating(t *testing.T) {
	opts := simOpts()
	opts.Synchronized = true
	opts.SyncPoll = time.Millisecond
	r := NewRunner(execers.NewSimExecer(), opts)
	r.Invoke("complete 0; complete 0")

	r.Ends.Get()
	time.Sleep(50 * time.Millisecond)
	if r.Starts.Len() != 1 {
		t.Fatalf("second statement must wait for Sync, starts queued: %d", r.Starts.Len())
	}
	r.Sync()
	end := r.Ends.Get()
	if end.Index != 1 {
		t.Fatalf("expected statement 1 after sync, got %d", end.Index)
	}
	r.Sync()
	waitDone(t, r)
}

func TestExecFailureRecords127(t *testing.T) {
	r := NewRunner(&execers.ErrExecer{Err: errors.New("no such file")}, simOpts())
	r.Invoke("whatever; again")
	waitDone(t, r)
	if r.Starts.Len() != 2 {
		t.Fatalf("expected a start event per statement, got %d", r.Starts.Len())
	}
	end := r.Ends.Get()
	if *end.ReturnCode != 127 || !strings.Contains(end.Stderr, "no such file") {
		t.Fatalf("unexpected end event %+v", end)
	}
}

func TestTimeoutAborts(t *testing.T) {
	opts := simOpts()
	opts.Timeout = 30 * time.Millisecond
	r := NewRunner(execers.NewSimExecer(), opts)
	r.Invoke("pause, complete 0; complete 0")
	waitDone(t, r)
	first := r.Ends.Get()
	if *first.ReturnCode != 124 || first.Error == "" {
		t.Fatalf("expected timed out statement, got %+v", first)
	}
	if second := r.Ends.Get(); *second.ReturnCode != 0 {
		t.Fatalf("statement after a timeout should still run, got %+v", second)
	}
}

func TestStopSkipsRemaining(t *testing.T) {
	r := NewRunner(execers.NewSimExecer(), simOpts())
	r.Invoke("pause, complete 0; complete 0; complete 0")
	r.Starts.Get()
	r.Stop()
	waitDone(t, r)
	if r.Ends.Len() != 1 {
		t.Fatalf("expected only the aborted statement to end, got %d ends", r.Ends.Len())
	}
	if r.Starts.Len() != 0 {
		t.Fatalf("no further statements should start after Stop")
	}
}

func TestInvokeOnce(t *testing.T) {
	r := NewRunner(execers.NewSimExecer(), simOpts())
	if err := r.Invoke(""); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	waitDone(t, r)
	if err := r.Invoke("complete 0"); err == nil {
		t.Fatalf("expected second invoke to fail")
	}
}

func TestNoSplitRunsWholeLine(t *testing.T) {
	r := NewRunner(osexec.NewExecer(0), Options{InvokeDelay: time.Millisecond})
	r.Invoke("echo A; echo B")
	waitDone(t, r)
	if got := r.Statements(); len(got) != 1 {
		t.Fatalf("expected one statement, got %q", got)
	}
	if end := r.Ends.Get(); end.Stdout != "A\nB\n" {
		t.Fatalf("unexpected stdout %q", end.Stdout)
	}
}

func TestUnsplittableLineFallsBack(t *testing.T) {
	r := NewRunner(osexec.NewExecer(0), Options{Split: true, InvokeDelay: time.Millisecond})
	r.Invoke("(echo A; echo B)")
	waitDone(t, r)
	if end := r.Ends.Get(); end.Stdout != "A\nB\n" || *end.ReturnCode != 0 {
		t.Fatalf("unexpected end %+v", end)
	}
}
