package container

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	jterrors "github.com/jobtree/jobtree/common/errors"
	"github.com/jobtree/jobtree/common/stats"
)

const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultMaxRetries   = 3
	DefaultQPS          = 10
)

// Querier bounds status queries: a shared rate limit, a per-query timeout and a
// fixed number of exponential-backoff retries.
type Querier struct {
	backend    Backend
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries uint64
	stat       stats.StatsReceiver
}

func NewQuerier(backend Backend, qps float64, maxRetries int, timeout time.Duration, stat stats.StatsReceiver) *Querier {
	if qps <= 0 {
		qps = DefaultQPS
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Querier{
		backend:    backend,
		limiter:    rate.NewLimiter(rate.Limit(qps), int(qps)+1),
		timeout:    timeout,
		maxRetries: uint64(maxRetries),
		stat:       stat,
	}
}

// Status returns the service's state. When the backend can't be reached within the
// retry budget it returns StateUnknown and a *errors.BackendQueryError.
func (q *Querier) Status(ctx context.Context, service string) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	q.stat.Counter(stats.ContainerQueryCounter).Inc(1)
	state := StateUnknown
	try := 1
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = q.timeout
	err := backoff.Retry(func() error {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
		log.Debugf("Container status query for %s, try #%d", service, try)
		try++
		var err error
		state, err = q.backend.Status(ctx, service)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, q.maxRetries), ctx))
	if err != nil {
		q.stat.Counter(stats.ContainerQueryFailedCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"service": service,
				"tries":   try - 1,
				"error":   err,
			}).Warn("Container status query failed")
		return StateUnknown, &jterrors.BackendQueryError{Service: service, Err: err}
	}
	return state, nil
}

func (q *Querier) Teardown(ctx context.Context, service string) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.backend.Teardown(ctx, service)
}
