package server

import (
	"path"
	"strconv"
	"testing"

	"github.com/jobtree/jobtree/container"
	"github.com/jobtree/jobtree/tree"
)

// addJob writes a job record with a start event for each of starts and an end event
// with each of codes.
func addJob(t *testing.T, tr *tree.Tree, job string, starts int, codes []int, done bool) {
	touch := func(p string, v interface{}) {
		if err := tr.Touch(p, v); err != nil {
			t.Fatalf("touch %s: %v", p, err)
		}
	}
	touch(path.Join(job, leafDone), done)
	for i := 0; i < starts; i++ {
		touch(path.Join(job, dirStart, strconv.Itoa(i), leafStartInfo), map[string]interface{}{"index": i, "pid": 100 + i})
	}
	for i, code := range codes {
		touch(path.Join(job, dirEnd, strconv.Itoa(i), leafEndInfo), map[string]interface{}{"index": i, "returncode": code})
	}
}

func TestDeriveStatus(t *testing.T) {
	tr := tree.New()
	addJob(t, tr, "/failed", 3, []int{0, 0, 1}, false)
	addJob(t, tr, "/ok", 3, []int{0, 0, 0}, false)
	addJob(t, tr, "/running", 3, nil, false)
	addJob(t, tr, "/fresh", 0, nil, false)
	addJob(t, tr, "/midway", 3, []int{0}, false)
	addJob(t, tr, "/recovered", 2, []int{1, 0}, true)

	cases := map[string]JobState{
		"/failed":    FinishedWithError,
		"/ok":        FinishedSuccessfully,
		"/running":   Started,
		"/fresh":     NotStarted,
		"/midway":    Started,
		"/recovered": FinishedSuccessfully,
		"/missing":   Undefined,
	}
	for job, want := range cases {
		if got := deriveStatus(tr, job); got != want {
			t.Fatalf("%s: expected %s, got %s", job, want, got)
		}
	}
}

func TestDeriveStatusWaitsForAllStatements(t *testing.T) {
	tr := tree.New()
	addJob(t, tr, "/job", 2, []int{0, 0}, false)
	if err := tr.Touch("/job/statements", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if got := deriveStatus(tr, "/job"); got != Started {
		t.Fatalf("two of three statements ended, expected started, got %s", got)
	}
	if err := tr.Touch("/job/done", true); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if got := deriveStatus(tr, "/job"); got != FinishedSuccessfully {
		t.Fatalf("a done job is judged by its last end, got %s", got)
	}
}

func TestDeriveStatusUsesHighestIndex(t *testing.T) {
	tr := tree.New()
	// A killed run left a gap: ends 0 and 4 only.
	tr.Touch("/job/start/0/startInfo", map[string]interface{}{})
	tr.Touch("/job/start/4/startInfo", map[string]interface{}{})
	tr.Touch("/job/end/0/endInfo", map[string]interface{}{"returncode": 0})
	tr.Touch("/job/end/4/endInfo", map[string]interface{}{"returncode": 2})
	tr.Touch("/job/done", true)
	if got := deriveStatus(tr, "/job"); got != FinishedWithError {
		t.Fatalf("expected the highest end index to decide, got %s", got)
	}
	if n := highestIndex(tr, "/job/end"); n != 4 {
		t.Fatalf("expected highest index 4, got %d", n)
	}
	if n := highestIndex(tr, "/nope"); n != -1 {
		t.Fatalf("expected -1 for a missing dir, got %d", n)
	}
}

func TestDeriveStatusContainerError(t *testing.T) {
	tr := tree.New()
	addJob(t, tr, "/job", 1, []int{0}, true)
	tr.Touch("/job/container/error", "image pull failed")
	if got := deriveStatus(tr, "/job"); got != FinishedWithError {
		t.Fatalf("a container error must fail the job, got %s", got)
	}
	tr.Touch("/job/container/error", false)
	if got := deriveStatus(tr, "/job"); got != FinishedSuccessfully {
		t.Fatalf("a false error leaf is ignored, got %s", got)
	}
}

func TestContainerJobState(t *testing.T) {
	cases := map[container.State]JobState{
		container.StateRunning:  Started,
		container.StateFailed:   FinishedWithError,
		container.StateComplete: FinishedSuccessfully,
		container.StateUnknown:  Undefined,
	}
	for in, want := range cases {
		if got := containerJobState(in); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}
