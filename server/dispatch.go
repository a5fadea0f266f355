package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	jterrors "github.com/jobtree/jobtree/common/errors"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/protocol"
)

type route struct {
	Verb   string
	Action protocol.Action
}

// handlerFunc answers one request. A returned error becomes a JSON failure body.
type handlerFunc func(p *PendingRequest) (interface{}, error)

// reads are reachable with either verb; everything else must be a POST.
var readOnly = map[protocol.Action]bool{
	protocol.ActionGet:         true,
	protocol.ActionSearch:      true,
	protocol.ActionInfo:        true,
	protocol.ActionDone:        true,
	protocol.ActionStatus:      true,
	protocol.ActionHello:       true,
	protocol.ActionFileIOSetup: true,
}

func (s *Server) buildRoutes() map[route]handlerFunc {
	handlers := map[protocol.Action]handlerFunc{
		protocol.ActionRun:         s.handleRun,
		protocol.ActionGet:         s.handleGet,
		protocol.ActionSearch:      s.handleSearch,
		protocol.ActionInfo:        s.handleInfo,
		protocol.ActionDone:        s.handleDone,
		protocol.ActionStatus:      s.handleStatus,
		protocol.ActionHello:       s.handleHello,
		protocol.ActionQuit:        s.handleQuit,
		protocol.ActionFileIOSetup: s.handleFileIOSetup,
	}
	routes := map[route]handlerFunc{}
	for action, h := range handlers {
		routes[route{protocol.VerbPost, action}] = h
		if readOnly[action] {
			routes[route{protocol.VerbGet, action}] = h
		}
	}
	return routes
}

// validateDispatch fails if some action cannot be reached.
func validateDispatch(routes map[route]handlerFunc) error {
	for _, a := range protocol.Actions {
		if _, ok := routes[route{protocol.VerbPost, a}]; ok {
			continue
		}
		if _, ok := routes[route{protocol.VerbGet, a}]; ok {
			continue
		}
		return fmt.Errorf("no handler for action %q", a)
	}
	return nil
}

func (s *Server) dispatch(p *PendingRequest) []byte {
	req := p.Request
	action := req.Body.Action
	if !req.HasBody {
		action = protocol.ActionGet
	}
	h, ok := s.routes[route{req.Verb, action}]
	if !ok {
		return protocol.ErrorResponse(jterrors.NewProtocolError(http.StatusMethodNotAllowed, "%s not allowed for action %q", req.Verb, action))
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("handle", p.handle()).Debugf("%s %s %s meta: %s", req.Verb, req.Path, action, spew.Sdump(req.Body.Meta))
	}

	stat := s.stat.Scope("listener")
	stat.Counter(stats.ListenerRequestCounter, string(action)).Inc(1)
	begin := time.Now()
	defer func() {
		stat.Histogram(stats.ListenerRequestLatency_ms, string(action)).Update(time.Since(begin).Milliseconds())
	}()

	body, err := h(p)
	if err != nil {
		stat.Counter(stats.ListenerErrorCounter, string(action)).Inc(1)
		log.WithFields(
			log.Fields{
				"action": action,
				"handle": p.handle(),
				"path":   req.Path,
			}).Infof("Request failed: %v", err)
		return errorBody(err)
	}
	return protocol.FormatResponse(http.StatusOK, body)
}

// errorBody renders err with the status code and detail its type calls for.
func errorBody(err error) []byte {
	switch e := err.(type) {
	case *jterrors.PersistenceError:
		return protocol.FormatResponse(http.StatusInternalServerError, e.Detail())
	case *jterrors.PathResolutionError:
		return protocol.FormatResponse(http.StatusNotFound, map[string]interface{}{
			"status":  false,
			"message": e.Error(),
		})
	}
	return protocol.ErrorResponse(err)
}
