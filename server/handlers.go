package server

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	jterrors "github.com/jobtree/jobtree/common/errors"
	"github.com/jobtree/jobtree/protocol"
	"github.com/jobtree/jobtree/tree"
)

// treePath maps a request path onto the tree: the API prefix is dropped and a leading
// "_N" picks the Nth job.
func (s *Server) treePath(t *tree.Tree, p string) string {
	if prefix := s.cfg.APIPrefix; prefix != "" && prefix != "/" {
		if p == prefix {
			p = "/"
		} else if strings.HasPrefix(p, prefix+"/") {
			p = strings.TrimPrefix(p, prefix)
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return t.ResolveOrdinal(path.Clean(p))
}

func (s *Server) handleGet(p *PendingRequest) (interface{}, error) {
	req := p.Request
	target := req.Path
	if req.HasBody {
		if meta := req.Body.MetaString("path"); meta != "" {
			target = meta
		}
	}
	var value interface{}
	var resolved string
	var ok bool
	s.store.View(func(t *tree.Tree) error {
		resolved = s.treePath(t, target)
		value, ok = t.Dump(resolved)
		return nil
	})
	if !ok {
		return nil, &jterrors.PathResolutionError{Path: resolved}
	}
	return map[string]interface{}{"status": true, "path": resolved, "value": value}, nil
}

// match scans the immediate children of base and returns, in enumeration order, those
// whose key leaf equals value. The caller holds the tree lock.
func match(t *tree.Tree, base, key string, value interface{}) []string {
	children, _ := t.Children(base)
	want := fmt.Sprint(value)
	var out []string
	for _, child := range children {
		v, ok := t.Cat(path.Join(child, key))
		if ok && fmt.Sprint(v) == want {
			out = append(out, child)
		}
	}
	return out
}

func (s *Server) matches(body protocol.Body) []string {
	base := "/"
	if p := body.MetaString("path"); p != "" {
		base = p
	}
	var out []string
	s.store.View(func(t *tree.Tree) error {
		out = match(t, s.treePath(t, base), body.MetaString("key"), body.Meta["value"])
		return nil
	})
	return out
}

func (s *Server) handleSearch(p *PendingRequest) (interface{}, error) {
	found := s.matches(p.Request.Body)
	if found == nil {
		found = []string{}
	}
	return map[string]interface{}{"status": true, "results": found}, nil
}

func noMatch(body protocol.Body) map[string]interface{} {
	return map[string]interface{}{
		"status":  false,
		"message": fmt.Sprintf("no job with %s=%v", body.MetaString("key"), body.Meta["value"]),
	}
}

// handleInfo returns the leaves of every matching job.
func (s *Server) handleInfo(p *PendingRequest) (interface{}, error) {
	body := p.Request.Body
	found := s.matches(body)
	if len(found) == 0 {
		return noMatch(body), nil
	}
	results := map[string]interface{}{}
	s.store.View(func(t *tree.Tree) error {
		for _, job := range found {
			leaves := map[string]interface{}{}
			names, _ := t.Lsf(job)
			for _, name := range names {
				leaves[name], _ = t.Cat(path.Join(job, name))
			}
			results[job] = leaves
		}
		return nil
	})
	return map[string]interface{}{"status": true, "results": results}, nil
}

func (s *Server) statuses(found []string) map[string]interface{} {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	out := map[string]interface{}{}
	for _, job := range found {
		out[job] = s.jobStatus(ctx, job)
	}
	return out
}

// handleDone reports whether every matching job has reached a terminal state.
func (s *Server) handleDone(p *PendingRequest) (interface{}, error) {
	body := p.Request.Body
	found := s.matches(body)
	if len(found) == 0 {
		return noMatch(body), nil
	}
	results := s.statuses(found)
	done := true
	for _, st := range results {
		if !st.(JobState).Terminal() {
			done = false
		}
	}
	return map[string]interface{}{"status": true, "done": done, "results": results}, nil
}

// handleStatus reports the state of the most recent matching job, plus every match's.
func (s *Server) handleStatus(p *PendingRequest) (interface{}, error) {
	body := p.Request.Body
	found := s.matches(body)
	if len(found) == 0 {
		return noMatch(body), nil
	}
	results := s.statuses(found)
	latest := found[len(found)-1]
	return map[string]interface{}{
		"status":    true,
		"path":      latest,
		"jobStatus": results[latest],
		"results":   results,
	}, nil
}

func (s *Server) handleHello(p *PendingRequest) (interface{}, error) {
	body := p.Request.Body
	switch ask := body.MetaString("askAbout"); ask {
	case protocol.AskTimestamp:
		return map[string]interface{}{"status": true, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}, nil
	case protocol.AskSysinfo:
		return map[string]interface{}{"status": true, "sysinfo": s.sysinfo()}, nil
	case protocol.AskEchoBack:
		return map[string]interface{}{"status": true, "echoBack": body.Meta}, nil
	default:
		return nil, jterrors.NewProtocolError(http.StatusBadRequest, "cannot answer about %q", ask)
	}
}

// handleQuit saves the database unless asked not to, then stops the server once the
// reply is on its way.
func (s *Server) handleQuit(p *PendingRequest) (interface{}, error) {
	if p.Request.Body.MetaBool("saveDB", true) {
		if err := s.daemon.SaveNow(); err != nil {
			return nil, err
		}
	}
	log.WithField("handle", p.handle()).Info("Quit requested")
	go s.Stop()
	return map[string]interface{}{"status": true}, nil
}

func (s *Server) handleFileIOSetup(p *PendingRequest) (interface{}, error) {
	return map[string]interface{}{
		"status": true,
		"host":   s.cfg.FileIO.Host,
		"port":   s.cfg.FileIO.Port,
	}, nil
}
