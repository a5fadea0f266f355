package server

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/xreq"

	"github.com/jobtree/jobtree/broker"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/protocol"

	// register transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// PendingRequest is one parsed request and the broker handle its reply must carry.
// It lives for a single dispatch, or for the goroutine a threaded run hands it to.
type PendingRequest struct {
	Handle  []byte
	Request *protocol.Request
}

func (p *PendingRequest) handle() string {
	return fmt.Sprintf("%x", p.Handle)
}

type dispatchFunc func(p *PendingRequest) []byte

// Listener takes requests from the broker's internal side one at a time. It asks for
// the next request only after its reply is sent, so the broker never queues work on a
// busy Listener. Between receives it checks its stop channel, so a stopped Listener
// exits within one poll interval.
type Listener struct {
	id       int
	sock     mangos.Socket
	poll     time.Duration
	dispatch dispatchFunc
	stat     stats.StatsReceiver
	busy     *int64 // shared by the pool
	seq      uint32
}

func NewListener(id int, internalURL string, poll time.Duration, dispatch dispatchFunc, stat stats.StatsReceiver, busy *int64) (*Listener, error) {
	sock, err := xreq.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetOption(mangos.OptionRecvDeadline, poll); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetOption(mangos.OptionMaxRecvSize, 0); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(internalURL); err != nil {
		sock.Close()
		return nil, errors.Wrapf(err, "listener %d dialing %s", id, internalURL)
	}
	return &Listener{id: id, sock: sock, poll: poll, dispatch: dispatch, stat: stat, busy: busy}, nil
}

// Run serves requests until stop is closed. A reply computed before stop is still
// sent; the socket stays open until Close so it can drain.
func (l *Listener) Run(stop <-chan struct{}) {
	log.WithField("listener", l.id).Debug("Listener started")
	frame := broker.Wrap(nil, nil)
	announce := true
	for {
		if announce {
			err := l.send(frame)
			switch {
			case err == mangos.ErrClosed:
				return
			case err != nil:
				log.WithField("listener", l.id).Errorf("Reply failed: %v", err)
				frame = broker.Wrap(nil, nil)
			default:
				announce = false
			}
		}
		select {
		case <-stop:
			log.WithField("listener", l.id).Debug("Listener stopped")
			return
		default:
		}
		if announce {
			time.Sleep(l.poll)
			continue
		}
		m, err := l.sock.RecvMsg()
		if err != nil {
			if err == mangos.ErrClosed {
				return
			}
			if err != mangos.ErrRecvTimeout {
				log.WithField("listener", l.id).Warnf("Receive failed: %v", err)
			}
			continue
		}
		route, body, err := broker.Unwrap(m.Body)
		if err != nil || route == nil {
			log.WithField("listener", l.id).Errorf("Dropping broker frame: %v", err)
			frame = broker.Wrap(nil, nil)
		} else {
			frame = broker.Wrap(route, l.serve(route, body))
		}
		m.Free()
		announce = true
	}
}

// send hands frame to the broker, which also marks this Listener idle.
func (l *Listener) send(frame []byte) error {
	l.seq++
	m := mangos.NewMessage(len(frame))
	m.Header = binary.BigEndian.AppendUint32(m.Header[:0], 0x80000000|l.seq)
	m.Body = append(m.Body, frame...)
	if err := l.sock.SendMsg(m); err != nil {
		m.Free()
		return err
	}
	return nil
}

func (l *Listener) Close() error {
	return l.sock.Close()
}

// serve turns one raw request into a raw reply. It never panics.
func (l *Listener) serve(header, body []byte) (reply []byte) {
	gauge := l.stat.Gauge(stats.ListenerBusyGauge)
	gauge.Update(atomic.AddInt64(l.busy, 1))
	defer func() { gauge.Update(atomic.AddInt64(l.busy, -1)) }()

	defer func() {
		if r := recover(); r != nil {
			l.stat.Counter(stats.ListenerPanicCounter).Inc(1)
			log.WithFields(
				log.Fields{
					"listener": l.id,
					"handle":   fmt.Sprintf("%x", header),
				}).Errorf("Handler panic: %v", r)
			reply = protocol.ErrorResponse(fmt.Errorf("internal error: %v", r))
		}
	}()

	req, err := protocol.ParseRequest(body)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		l.stat.Counter(stats.ListenerErrorCounter, "malformed").Inc(1)
		log.WithFields(
			log.Fields{
				"listener": l.id,
				"handle":   fmt.Sprintf("%x", header),
			}).Infof("Rejected request: %v", err)
		return protocol.ErrorResponse(err)
	}
	h := make([]byte, len(header))
	copy(h, header)
	return l.dispatch(&PendingRequest{Handle: h, Request: req})
}
