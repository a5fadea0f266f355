// Package persist loads the job tree from its on-disk mirror at startup and keeps the
// mirror current by periodically snapshotting the whole tree.
package persist

import (
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	jterrors "github.com/jobtree/jobtree/common/errors"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/tree"
)

const (
	DefaultInterval = 60 * time.Second
	// tick is how often Run checks for shutdown and for an elapsed interval.
	tick = time.Second
)

// Open loads the mirror at dir, or returns an empty tree if there is none. A save cut
// short between its two renames is finished first.
func Open(dir string) (*tree.Tree, error) {
	st, err := os.Stat(dir)
	if os.IsNotExist(err) {
		recovered, rerr := recoverSwap(dir)
		if rerr != nil {
			return nil, rerr
		}
		if !recovered {
			log.WithField("dir", dir).Info("No database found, starting empty")
			return tree.New(), nil
		}
		st, err = os.Stat(dir)
	}
	if err != nil {
		return nil, &jterrors.PersistenceError{Op: "load", Dir: dir, Err: err}
	}
	if !st.IsDir() {
		return nil, &jterrors.PersistenceError{Op: "load", Dir: dir, Err: os.ErrInvalid}
	}
	t, err := tree.Load(dir)
	if err != nil {
		return nil, err
	}
	log.WithField("dir", dir).Infof("Loaded database with %d jobs", countJobs(t))
	return t, nil
}

// recoverSwap moves a surviving mirror into place when dir is missing. <dir>.old only
// exists once <dir>.tmp has been completely written, so .tmp is preferred when both
// exist. A lone .tmp may be partial and is ignored.
func recoverSwap(dir string) (bool, error) {
	old := dir + ".old"
	tmp := dir + ".tmp"
	if !isDir(old) {
		return false, nil
	}
	src := old
	if isDir(tmp) {
		src = tmp
	}
	if err := os.Rename(src, dir); err != nil {
		return false, &jterrors.PersistenceError{Op: "recover", Dir: dir, Err: err}
	}
	os.RemoveAll(old)
	log.WithFields(
		log.Fields{
			"dir":  dir,
			"from": src,
		}).Warn("Recovered database from an interrupted save")
	return true, nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func countJobs(t *tree.Tree) int {
	jobs, _ := t.Ls("/")
	return len(jobs)
}

type Daemon struct {
	Store    *tree.Locked
	Dir      string
	Interval time.Duration
	Clock    clock.Clock
	Stat     stats.StatsReceiver

	mu       sync.Mutex // serializes saves
	lastSave time.Time
}

func NewDaemon(store *tree.Locked, dir string, interval time.Duration, stat stats.StatsReceiver) *Daemon {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Daemon{Store: store, Dir: dir, Interval: interval, Clock: clock.New(), Stat: stat}
}

// Run saves the tree every Interval until stop is closed. It wakes once a second so
// that shutdown is prompt. Save failures are logged and the daemon keeps going.
func (d *Daemon) Run(stop <-chan struct{}) {
	ticker := d.Clock.Ticker(tick)
	defer ticker.Stop()
	d.mu.Lock()
	d.lastSave = d.Clock.Now()
	d.mu.Unlock()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			d.mu.Lock()
			due := now.Sub(d.lastSave) >= d.Interval
			d.mu.Unlock()
			if due {
				d.SaveNow()
			}
		}
	}
}

// SaveNow snapshots the tree under its lock and replaces the mirror with the snapshot.
// The new mirror is written beside the old one and renamed into place, so a failed
// save leaves the previous mirror intact.
func (d *Daemon) SaveNow() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	latency := d.Stat.Latency(stats.SnapshotLatency_ms).Time()
	defer latency.Stop()

	err := d.save()
	d.lastSave = d.Clock.Now()
	if err != nil {
		d.Stat.Counter(stats.SnapshotFailedCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"dir":   d.Dir,
				"error": err,
			}).Error("Database save failed")
		return err
	}
	d.Stat.Counter(stats.SnapshotSavedCounter).Inc(1)
	log.WithField("dir", d.Dir).Debug("Database saved")
	return nil
}

func (d *Daemon) save() error {
	snap, err := d.Store.Snapshot()
	if err != nil {
		return &jterrors.PersistenceError{Op: "save", Dir: d.Dir, Err: err}
	}
	tmp := d.Dir + ".tmp"
	old := d.Dir + ".old"
	if err := os.RemoveAll(tmp); err != nil {
		return &jterrors.PersistenceError{Op: "save", Dir: d.Dir, Err: err}
	}
	if err := snap.Save("/", tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return &jterrors.PersistenceError{Op: "save", Dir: d.Dir, Err: err}
	}
	if err := os.Rename(d.Dir, old); err != nil && !os.IsNotExist(err) {
		return &jterrors.PersistenceError{Op: "save", Dir: d.Dir, Err: err}
	}
	if err := os.Rename(tmp, d.Dir); err != nil {
		// Put the previous mirror back.
		os.Rename(old, d.Dir)
		return &jterrors.PersistenceError{Op: "save", Dir: d.Dir, Err: err}
	}
	os.RemoveAll(old)
	return nil
}
