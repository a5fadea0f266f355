// Package server answers broker requests against the job tree: it runs submitted
// command lines, records their lifecycle, and reports job status.
package server

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jobtree/jobtree/broker"
	"github.com/jobtree/jobtree/common/endpoints"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/config"
	"github.com/jobtree/jobtree/container"
	"github.com/jobtree/jobtree/persist"
	"github.com/jobtree/jobtree/runner/execer"
	osexec "github.com/jobtree/jobtree/runner/execer/os"
	"github.com/jobtree/jobtree/runner/shell"
	"github.com/jobtree/jobtree/tree"
)

const (
	uptimeInterval = 15 * time.Second
	// closeLinger gives replies already handed to the broker time to reach clients.
	closeLinger = 100 * time.Millisecond
)

type Server struct {
	cfg       *config.Config
	store     *tree.Locked
	broker    *broker.Broker
	listeners []*Listener
	daemon    *persist.Daemon
	backend   container.Backend
	tracker   *container.Tracker
	execer    execer.Execer
	argv      func(statement string) []string
	admin     *endpoints.AdminServer
	stat      stats.StatsReceiver
	routes    map[route]handlerFunc
	busy      int64
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopping bool
	running  map[string]*shell.Runner
	jobs     sync.WaitGroup

	stopCh   chan struct{}
	stopOnce sync.Once
	serving  chan struct{}
	done     chan struct{}
}

type Option func(*Server)

// WithExecer replaces the OS execer, e.g. with a simulated one.
func WithExecer(ex execer.Execer) Option {
	return func(s *Server) { s.execer = ex }
}

// WithBackend answers container status queries from backend instead of the configured
// status URL.
func WithBackend(backend container.Backend) Option {
	return func(s *Server) { s.backend = backend }
}

// WithArgv changes how a statement becomes an argv. The default runs it through /bin/sh.
func WithArgv(argv func(statement string) []string) Option {
	return func(s *Server) { s.argv = argv }
}

func WithStats(stat stats.StatsReceiver) Option {
	return func(s *Server) { s.stat = stat }
}

// New binds the broker and its listeners. Nothing is served until Serve.
func New(cfg *config.Config, store *tree.Locked, opts ...Option) (*Server, error) {
	s, err := newServer(cfg, store, opts...)
	if err != nil {
		return nil, err
	}
	b, err := broker.New(cfg.Addr, cfg.InternalAddr)
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.broker = b
	for i := 0; i < cfg.Listeners; i++ {
		l, err := NewListener(i, cfg.InternalAddr, cfg.PollInterval, s.dispatch, s.stat.Scope("listener"), &s.busy)
		if err != nil {
			for _, l := range s.listeners {
				l.Close()
			}
			b.Close()
			s.cancel()
			return nil, err
		}
		s.listeners = append(s.listeners, l)
	}
	s.registerContainerJobs()
	return s, nil
}

// newServer builds everything but the sockets.
func newServer(cfg *config.Config, store *tree.Locked, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		store:     store,
		stat:      stats.NilStatsReceiver(),
		startTime: time.Now(),
		running:   map[string]*shell.Runner{},
		stopCh:    make(chan struct{}),
		serving:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}
	if s.execer == nil {
		s.execer = osexec.NewExecer(cfg.KillGrace)
	}
	if s.backend == nil && cfg.Container.StatusURL != "" {
		s.backend = container.NewHTTPBackend(cfg.Container.StatusURL, container.MakePesterClient(container.DefaultHttpTries))
	}
	if s.backend != nil {
		c := cfg.Container
		q := container.NewQuerier(s.backend, c.QPS, c.MaxRetries, c.QueryTimeout, s.stat.Scope("container"))
		s.tracker = container.NewTracker(q, s.stat.Scope("container"))
	}

	s.routes = s.buildRoutes()
	if err := validateDispatch(s.routes); err != nil {
		return nil, err
	}
	s.daemon = persist.NewDaemon(store, cfg.DBDir, cfg.SaveInterval, s.stat.Scope("persist"))
	if cfg.HTTPAddr != "" {
		s.admin = endpoints.NewAdminServer(cfg.HTTPAddr, s.stat)
	}
	return s, nil
}

// Serve runs the listeners, the persistence daemon and the admin endpoints until Stop
// is called. Running jobs are stopped and joined before the broker is closed.
func (s *Server) Serve() error {
	close(s.serving)
	defer close(s.done)

	g, ctx := errgroup.WithContext(s.ctx)
	for _, l := range s.listeners {
		l := l
		g.Go(func() error {
			l.Run(s.stopCh)
			return nil
		})
	}
	g.Go(func() error {
		s.daemon.Run(s.stopCh)
		return nil
	})
	g.Go(func() error {
		stats.StartUptimeReporting(s.stat, stats.ServerUptime_ms, uptimeInterval, s.stopCh)
		return nil
	})
	if s.admin != nil {
		g.Go(func() error {
			err := s.admin.Serve()
			if err != nil {
				log.Errorf("Admin endpoints failed: %v", err)
				s.signalStop()
			}
			return err
		})
		g.Go(func() error {
			select {
			case <-s.stopCh:
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return s.admin.Shutdown(shutdownCtx)
		})
	}
	log.WithFields(
		log.Fields{
			"addr":      s.cfg.Addr,
			"listeners": len(s.listeners),
		}).Info("Serving")

	err := g.Wait()
	s.jobs.Wait()
	s.cancel()
	time.Sleep(closeLinger)
	for _, l := range s.listeners {
		l.Close()
	}
	if cerr := s.broker.Close(); err == nil {
		err = cerr
	}
	log.Info("Server stopped")
	return err
}

// signalStop tells every loop to finish and stops running jobs. It does not wait.
func (s *Server) signalStop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		for job, r := range s.running {
			log.WithField("jobPath", job).Info("Stopping job")
			r.Stop()
		}
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// Stop stops the server and, if it is serving, waits for Serve to return.
func (s *Server) Stop() {
	s.signalStop()
	select {
	case <-s.serving:
		<-s.done
	default:
		// Never served: release what New bound.
		s.jobs.Wait()
		for _, l := range s.listeners {
			l.Close()
		}
		s.cancel()
		if s.broker != nil {
			s.broker.Close()
		}
	}
}

// Store exposes the tree the server writes to.
func (s *Server) Store() *tree.Locked {
	return s.store
}

// Save writes the database now.
func (s *Server) Save() error {
	return s.daemon.SaveNow()
}
