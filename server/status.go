package server

import (
	"context"
	"path"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/container"
	"github.com/jobtree/jobtree/tree"
)

type JobState string

const (
	NotStarted           JobState = "notstarted"
	Started              JobState = "started"
	FinishedSuccessfully JobState = "finishedSuccessfully"
	FinishedWithError    JobState = "finishedWithError"
	Undefined            JobState = "undefined"
)

func (s JobState) Terminal() bool {
	return s == FinishedSuccessfully || s == FinishedWithError
}

// Names inside a job record.
const (
	leafCmd         = "cmd"
	leafAuid        = "auid"
	leafJid         = "jid"
	leafSubmittedAt = "submittedAt"
	leafStatements  = "statements"
	leafJobCount    = "jobCount"
	leafDone        = "done"
	leafFinishedAt  = "finishedAt"
	leafError       = "error"

	dirStart     = "start"
	dirEnd       = "end"
	dirContainer = "container"

	leafStartInfo = "startInfo"
	leafEndInfo   = "endInfo"

	leafService        = "service"
	leafContainerState = "state"
	leafTornDown       = "tornDown"
)

// deriveStatus computes the state of the job record at job from its start and end
// events. The caller holds the tree lock.
func deriveStatus(t *tree.Tree, job string) JobState {
	if !t.IsDir(job) {
		return Undefined
	}
	if truthy(cat(t, job, dirContainer, leafError)) {
		return FinishedWithError
	}
	maxStart := highestIndex(t, path.Join(job, dirStart))
	if maxStart < 0 {
		return NotStarted
	}
	maxEnd := highestIndex(t, path.Join(job, dirEnd))
	if maxEnd < 0 {
		return Started
	}
	done, _ := cat(t, job, leafDone).(bool)
	if !done {
		stmts, _ := cat(t, job, leafStatements).([]interface{})
		if maxEnd < maxStart || maxEnd < len(stmts)-1 {
			return Started
		}
	}
	info, _ := cat(t, job, dirEnd, strconv.Itoa(maxEnd), leafEndInfo).(map[string]interface{})
	code, ok := info["returncode"].(float64)
	if !ok {
		return Undefined
	}
	if code == 0 {
		return FinishedSuccessfully
	}
	return FinishedWithError
}

// highestIndex returns the largest numeric child name under dir, or -1. Re-run jobs
// can leave gaps, so this is not the child count.
func highestIndex(t *tree.Tree, dir string) int {
	names, ok := t.Ls(dir)
	if !ok {
		return -1
	}
	max := -1
	for _, name := range names {
		if n, err := strconv.Atoi(name); err == nil && n > max {
			max = n
		}
	}
	return max
}

func cat(t *tree.Tree, elem ...string) interface{} {
	v, _ := t.Cat(path.Join(elem...))
	return v
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "False" && x != "0"
	case float64:
		return x != 0
	case nil:
		return false
	}
	return true
}

func containerJobState(s container.State) JobState {
	switch s {
	case container.StateRunning:
		return Started
	case container.StateFailed:
		return FinishedWithError
	case container.StateComplete:
		return FinishedSuccessfully
	}
	return Undefined
}

// jobStatus returns the state of one job. A container-backed job is answered by the
// container backend, not by its local exit codes, unless the record carries a container
// error. The tree lock is not held while the backend is queried. Once a container job
// is terminal, for any reason, it is released in the tracker, which tears the service
// down when every job sharing it is terminal.
func (s *Server) jobStatus(ctx context.Context, job string) JobState {
	var state JobState
	var service string
	var recorded JobState
	var failed bool
	s.store.View(func(t *tree.Tree) error {
		state = deriveStatus(t, job)
		service, _ = cat(t, job, dirContainer, leafService).(string)
		failed = truthy(cat(t, job, dirContainer, leafError))
		if r, ok := cat(t, job, dirContainer, leafContainerState).(string); ok {
			recorded = JobState(r)
		}
		return nil
	})
	if service == "" {
		return state
	}

	fields := log.Fields{"jobPath": job, "service": service}
	switch {
	case failed:
		state = FinishedWithError
	case recorded.Terminal():
		state = recorded
	case s.tracker == nil:
		return Undefined
	default:
		cs, err := s.tracker.Status(ctx, service)
		if err != nil {
			log.WithFields(fields).Warnf("Container status unavailable: %v", err)
			return Undefined
		}
		state = containerJobState(cs)
		if !state.Terminal() {
			return state
		}
	}
	if recorded != state {
		s.store.Do(func(t *tree.Tree) error {
			if !t.IsDir(job) {
				return nil
			}
			return t.Touch(path.Join(job, dirContainer, leafContainerState), string(state))
		})
	}
	if s.tracker == nil {
		return state
	}

	if _, err := s.tracker.MarkTerminal(ctx, service, job); err != nil {
		log.WithFields(fields).Errorf("Container teardown will be retried: %v", err)
	}
	if s.tracker.TornDown(job) {
		s.store.Do(func(t *tree.Tree) error {
			if !t.IsDir(job) {
				return nil
			}
			return t.Touch(path.Join(job, dirContainer, leafTornDown), true)
		})
	}
	return state
}

// registerContainerJobs hands every container-backed job that has not been torn down
// to the tracker. Run once at startup for jobs loaded from disk.
func (s *Server) registerContainerJobs() {
	if s.tracker == nil {
		return
	}
	type pending struct{ service, job string }
	var found []pending
	s.store.View(func(t *tree.Tree) error {
		jobs, _ := t.Children("/")
		for _, job := range jobs {
			service, _ := cat(t, job, dirContainer, leafService).(string)
			if service == "" || truthy(cat(t, job, dirContainer, leafTornDown)) {
				continue
			}
			found = append(found, pending{service, job})
		}
		return nil
	})
	for _, p := range found {
		s.tracker.Register(p.service, p.job)
	}
	if len(found) > 0 {
		log.Infof("Tracking %d container-backed jobs", len(found))
	}
}
