// Package endpoints serves the admin HTTP surface: health and rendered stats.
package endpoints

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/common/stats"
)

func NewAdminServer(addr string, stats stats.StatsReceiver) *AdminServer {
	s := &AdminServer{
		Addr:  addr,
		Stats: stats,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", helpHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/admin/metrics.json", s.statsHandler)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

type AdminServer struct {
	Addr  string
	Stats stats.StatsReceiver
	srv   *http.Server
}

// Serve blocks until the server is shut down. A clean shutdown returns nil.
func (s *AdminServer) Serve() error {
	log.Infof("Serving http & stats on %s", s.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *AdminServer) Handler() http.Handler {
	return s.srv.Handler
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Error(w, "Common paths: '/health', '/admin/metrics.json'", http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *AdminServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
