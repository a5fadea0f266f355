package container

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/common/stats"
)

// Tracker reference-counts the jobs sharing each service name. A service is torn down
// exactly once, by whichever job is the last of its generation to reach a terminal
// state. Registering a job for a service that is being or has been torn down starts a
// new generation.
type Tracker struct {
	querier *Querier
	stat    stats.StatsReceiver

	mu       sync.Mutex
	services map[string]*serviceRefs
	byJob    map[string]*serviceRefs
}

type serviceRefs struct {
	jobs     map[string]bool // job path -> terminal
	claimed  bool
	tornDown bool
}

func NewTracker(querier *Querier, stat stats.StatsReceiver) *Tracker {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Tracker{querier: querier, stat: stat, services: map[string]*serviceRefs{}, byJob: map[string]*serviceRefs{}}
}

// Status queries the backend for service.
func (t *Tracker) Status(ctx context.Context, service string) (State, error) {
	return t.querier.Status(ctx, service)
}

// Register records that jobPath uses service. It is idempotent.
func (t *Tracker) Register(service, jobPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	refs, ok := t.services[service]
	if !ok || refs.tornDown || refs.claimed {
		refs = &serviceRefs{jobs: map[string]bool{}}
		t.services[service] = refs
	}
	if _, ok := refs.jobs[jobPath]; !ok {
		refs.jobs[jobPath] = false
	}
	t.byJob[jobPath] = refs
}

// TornDown reports whether the service generation jobPath was registered with has been
// torn down.
func (t *Tracker) TornDown(jobPath string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	refs, ok := t.byJob[jobPath]
	return ok && refs.tornDown
}

// Outstanding returns how many registered jobs of service are not yet terminal.
func (t *Tracker) Outstanding(service string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	refs, ok := t.services[service]
	if !ok {
		return 0
	}
	n := 0
	for _, terminal := range refs.jobs {
		if !terminal {
			n++
		}
	}
	return n
}

// MarkTerminal records that jobPath has finished and, if no job of the service is still
// outstanding, tears the service down. It reports whether this call did the teardown.
// A failed teardown is released so a later call can retry it.
func (t *Tracker) MarkTerminal(ctx context.Context, service, jobPath string) (bool, error) {
	t.mu.Lock()
	refs, ok := t.byJob[jobPath]
	if !ok {
		refs, ok = t.services[service]
	}
	if !ok || refs.tornDown {
		t.mu.Unlock()
		return false, nil
	}
	refs.jobs[jobPath] = true
	for _, terminal := range refs.jobs {
		if !terminal || refs.claimed {
			t.mu.Unlock()
			return false, nil
		}
	}
	refs.claimed = true
	t.mu.Unlock()

	fields := log.Fields{"service": service, "jobPath": jobPath}
	if err := t.querier.Teardown(ctx, service); err != nil {
		t.mu.Lock()
		refs.claimed = false
		t.mu.Unlock()
		log.WithFields(fields).Errorf("Container teardown failed: %v", err)
		return false, err
	}

	t.mu.Lock()
	refs.tornDown = true
	t.mu.Unlock()
	t.stat.Counter(stats.ContainerTeardownCounter).Inc(1)
	log.WithFields(fields).Info("Container service torn down")
	return true, nil
}
