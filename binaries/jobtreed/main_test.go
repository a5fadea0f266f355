package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	jterrors "github.com/jobtree/jobtree/common/errors"
)

func exitCode(t *testing.T, args ...string) jterrors.ExitCode {
	cmd := newCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	var ee *jterrors.ExitCodeError
	if !errors.As(err, &ee) {
		t.Fatalf("expected an exit code error, got %v", err)
	}
	return ee.GetExitCode()
}

func TestMissingConfigExitCode(t *testing.T) {
	if code := exitCode(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")); code != jterrors.ConfigFailureExitCode {
		t.Fatalf("expected config failure exit code, got %d", code)
	}
}

func TestUnreadableDBExitCode(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "db")
	if err := os.WriteFile(db, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := filepath.Join(dir, "jobtree.yaml")
	if err := os.WriteFile(cfg, []byte("dbDir: "+db+"\nhttpAddr: \"\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := exitCode(t, "--config", cfg, "--env_file", ""); code != jterrors.DBLoadFailureExitCode {
		t.Fatalf("expected DB load failure exit code, got %d", code)
	}
}
