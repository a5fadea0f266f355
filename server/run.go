package server

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	log "github.com/sirupsen/logrus"

	jterrors "github.com/jobtree/jobtree/common/errors"
	"github.com/jobtree/jobtree/common/log/tags"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/runner/pipeline"
	"github.com/jobtree/jobtree/runner/shell"
	"github.com/jobtree/jobtree/tree"
)

// jobNameLayout sorts lexically in submission order.
const jobNameLayout = "20060102T150405.000000"

func newJobPath(now time.Time) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return "/" + now.UTC().Format(jobNameLayout) + "-" + id.String(), nil
}

// handleRun records a job and runs its command line. A threaded run is acknowledged
// as soon as the record exists; otherwise the reply waits for the last statement.
func (s *Server) handleRun(p *PendingRequest) (interface{}, error) {
	body := p.Request.Body
	cmd := body.MetaString("cmd")
	jid := body.MetaString("jid")
	threaded := body.MetaBool("threaded", false)

	now := time.Now()
	job, err := newJobPath(now)
	if err != nil {
		return nil, err
	}
	statements, _ := shell.Statements(cmd, s.cfg.SplitStatements)
	if len(statements) == 0 {
		return nil, jterrors.NewProtocolError(http.StatusBadRequest, "command %q has no statements", cmd)
	}

	var service string
	err = s.store.Do(func(t *tree.Tree) error {
		leaves := map[string]interface{}{
			leafCmd:         cmd,
			leafAuid:        body.MetaString("auid"),
			leafJid:         jid,
			leafSubmittedAt: now.UTC().Format(time.RFC3339Nano),
			leafStatements:  statements,
			leafJobCount:    0,
			leafDone:        false,
		}
		for name, v := range leaves {
			if err := t.Touch(path.Join(job, name), v); err != nil {
				return err
			}
		}
		for _, dir := range []string{dirStart, dirEnd} {
			if err := t.Mkdir(path.Join(job, dir)); err != nil {
				return err
			}
		}
		if c, ok := body.Meta["container"].(map[string]interface{}); ok {
			for name, v := range c {
				if err := t.Touch(path.Join(job, dirContainer, name), v); err != nil {
					return err
				}
			}
			service, _ = c[leafService].(string)
		}
		return nil
	})
	if err != nil {
		s.store.Do(func(t *tree.Tree) error {
			t.Rm(job)
			return nil
		})
		return nil, err
	}
	if service != "" && s.tracker != nil {
		s.tracker.Register(service, job)
	}

	timeout := s.cfg.DefaultTimeout
	if secs := body.MetaFloat("timeout", 0); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	lt := tags.LogTags{JobPath: job, JobID: jid}
	runner := shell.NewRunner(s.execer, shell.Options{
		Split:        s.cfg.SplitStatements,
		Synchronized: s.cfg.SyncStatements,
		Timeout:      timeout,
		Argv:         s.argv,
		Tags:         lt,
		Stat:         s.stat.Scope("runner"),
	})
	if !s.trackRunner(job, runner) {
		return nil, fmt.Errorf("server is stopping")
	}
	s.stat.Counter(stats.JobsStartedCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"jobPath":    job,
			"jid":        jid,
			"handle":     p.handle(),
			"threaded":   threaded,
			"statements": len(statements),
		}).Info("Job submitted")

	if threaded {
		go s.runJob(job, cmd, runner, lt)
		return map[string]interface{}{"status": true, "threaded": true, "path": job}, nil
	}
	n, err := s.runJob(job, cmd, runner, lt)
	if err != nil {
		return nil, err
	}
	var state JobState
	s.store.View(func(t *tree.Tree) error {
		state = deriveStatus(t, job)
		return nil
	})
	return map[string]interface{}{
		"status":     true,
		"path":       job,
		"jobStatus":  state,
		"statements": n,
	}, nil
}

// runJob relays the runner's events into the job record until the runner is done,
// then marks the record done.
func (s *Server) runJob(job, cmd string, runner *shell.Runner, lt tags.LogTags) (int, error) {
	defer s.untrackRunner(job)

	n, err := pipeline.New(runner).Run(cmd, &jobSink{store: s.store, job: job, stat: s.stat})
	if err != nil {
		log.WithFields(lt.Fields()).Errorf("Job pipeline failed: %v", err)
	}
	s.store.Do(func(t *tree.Tree) error {
		if !t.IsDir(job) {
			return nil
		}
		if err != nil {
			t.Touch(path.Join(job, leafError), err.Error())
		}
		t.Touch(path.Join(job, leafDone), true)
		return t.Touch(path.Join(job, leafFinishedAt), time.Now().UTC().Format(time.RFC3339Nano))
	})
	s.stat.Counter(stats.JobsFinishedCounter).Inc(1)
	log.WithFields(lt.Fields()).Infof("Job finished after %d statements", n)
	return n, err
}

// jobSink writes relayed events under the job record. Each event is written in its own
// critical section so readers see start/N before end/N.
type jobSink struct {
	store *tree.Locked
	job   string
	stat  stats.StatsReceiver
}

func (j *jobSink) Started(ev shell.Event) error {
	return j.store.Do(func(t *tree.Tree) error {
		return t.Touch(path.Join(j.job, dirStart, strconv.Itoa(ev.Index), leafStartInfo), ev)
	})
}

func (j *jobSink) Ended(ev shell.Event) error {
	return j.store.Do(func(t *tree.Tree) error {
		if err := t.Touch(path.Join(j.job, dirEnd, strconv.Itoa(ev.Index), leafEndInfo), ev); err != nil {
			return err
		}
		count, _ := cat(t, j.job, leafJobCount).(float64)
		return t.Touch(path.Join(j.job, leafJobCount), int(count)+1)
	})
}

func (s *Server) trackRunner(job string, r *shell.Runner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.running[job] = r
	s.jobs.Add(1)
	s.stat.Gauge(stats.JobsRunningGauge).Update(int64(len(s.running)))
	return true
}

func (s *Server) untrackRunner(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, job)
	s.jobs.Done()
	s.stat.Gauge(stats.JobsRunningGauge).Update(int64(len(s.running)))
}
