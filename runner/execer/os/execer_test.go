package os

import (
	"bytes"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/common/log/hooks"
	"github.com/jobtree/jobtree/runner/execer"
)

func init() {
	log.AddHook(hooks.NewContextHook())
	logrusLevel, _ := log.ParseLevel("debug")
	log.SetLevel(logrusLevel)
}

func sh(stmt string) []string {
	return []string{"/bin/sh", "-c", stmt}
}

func TestExitCodes(t *testing.T) {
	exer := NewExecer(0)

	p, err := exer.Exec(execer.Command{Argv: sh("true")})
	if err != nil {
		t.Fatalf("Couldn't run true %v", err)
	}
	status := p.Wait()
	if status.State != execer.COMPLETE || status.ExitCode != 0 {
		t.Fatalf("Got unexpected status running true %v", status)
	}

	p, err = exer.Exec(execer.Command{Argv: sh("exit 3")})
	if err != nil {
		t.Fatalf("Couldn't run exit 3 %v", err)
	}
	status = p.Wait()
	if status.State != execer.COMPLETE || status.ExitCode != 3 {
		t.Fatalf("Got unexpected status running exit 3 %v", status)
	}
}

func TestOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := execer.Command{
		Argv:   sh("echo hello; echo oops 1>&2"),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	p, err := NewExecer(0).Exec(cmd)
	if err != nil {
		t.Fatalf("Couldn't run %v", err)
	}
	if p.Pid() <= 0 {
		t.Fatalf("expected a real pid, got %d", p.Pid())
	}
	status := p.Wait()
	if status.State != execer.COMPLETE || status.ExitCode != 0 {
		t.Fatalf("Got unexpected status %v", status)
	}
	if stdout.String() != "hello\n" || stderr.String() != "oops\n" {
		t.Fatalf("Incorrect output, got %q and %q", stdout.String(), stderr.String())
	}
}

func TestPollIsBounded(t *testing.T) {
	p, err := NewExecer(0).Exec(execer.Command{Argv: sh("sleep 1")})
	if err != nil {
		t.Fatalf("Couldn't run sleep %v", err)
	}
	start := time.Now()
	st, done := p.Poll(20 * time.Millisecond)
	if done || st.State != execer.RUNNING {
		t.Fatalf("expected sleep to still be running, got %v", st)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("poll took too long")
	}
	for !done {
		st, done = p.Poll(100 * time.Millisecond)
	}
	if st.ExitCode != 0 {
		t.Fatalf("unexpected final status %v", st)
	}
}

func TestAbortKillsGroup(t *testing.T) {
	var stdout bytes.Buffer
	p, err := NewExecer(200*time.Millisecond).Exec(execer.Command{
		Argv:   sh("trap '' TERM; sleep 30 & wait"),
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatalf("Couldn't run %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	st := p.Abort()
	if st.State != execer.FAILED || !strings.Contains(st.Error, "Aborted") {
		t.Fatalf("unexpected abort status %v", st)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("abort did not escalate to SIGKILL in time")
	}
	if again := p.Abort(); again != st {
		t.Fatalf("second abort should return the same status, got %v", again)
	}
}

func TestEmptyArgv(t *testing.T) {
	if _, err := NewExecer(0).Exec(execer.Command{}); err == nil {
		t.Fatalf("expected error for empty argv")
	}
}
