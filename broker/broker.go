// Package broker routes client requests to a pool of listeners and their replies back
// to the right client. A listener is handed a request only after it reports itself
// idle, so a listener busy with a long request never has work queued behind it.
//
// Clients speak req/rep to the external side. Listeners dial the internal side with a
// raw req socket and exchange frames built by Wrap: a listener announces itself with
// an empty frame, receives Wrap(clientRoute, request), and answers with
// Wrap(clientRoute, reply), which also announces it idle again.
package broker

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/xrep"

	"github.com/jobtree/jobtree/common/queue"

	// register transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// pollInterval bounds how long the dispatcher waits before rechecking for Close.
const pollInterval = 50 * time.Millisecond

type Broker struct {
	external mangos.Socket
	internal mangos.Socket

	work *queue.Queue[*mangos.Message] // client requests not yet handed out
	idle *queue.Queue[[]byte]          // routes of idle listeners

	mu   sync.Mutex
	live map[uint32]bool // attached listener pipes

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New listens for clients on externalURL and for listeners on internalURL, and starts
// forwarding between them.
func New(externalURL, internalURL string) (*Broker, error) {
	external, err := xrep.NewSocket()
	if err != nil {
		return nil, err
	}
	internal, err := xrep.NewSocket()
	if err != nil {
		external.Close()
		return nil, err
	}
	b := &Broker{
		external: external,
		internal: internal,
		work:     queue.New[*mangos.Message](),
		idle:     queue.New[[]byte](),
		live:     map[uint32]bool{},
		closed:   make(chan struct{}),
	}
	internal.SetPipeEventHook(b.trackPipe)

	// unlimited Recv() length, so large run requests and replies aren't silently dropped
	for _, sock := range []mangos.Socket{external, internal} {
		if err := sock.SetOption(mangos.OptionMaxRecvSize, 0); err != nil {
			b.closeSockets()
			return nil, err
		}
	}
	if err := external.Listen(externalURL); err != nil {
		b.closeSockets()
		return nil, errors.Wrapf(err, "listening on %s", externalURL)
	}
	if err := internal.Listen(internalURL); err != nil {
		b.closeSockets()
		return nil, errors.Wrapf(err, "listening on %s", internalURL)
	}

	b.wg.Add(3)
	go b.frontend()
	go b.backend()
	go b.dispatch()

	log.WithFields(
		log.Fields{
			"external": externalURL,
			"internal": internalURL,
		}).Info("Broker started")
	return b, nil
}

// Close stops forwarding and waits for the broker's goroutines. Requests not yet
// answered are dropped.
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		err = b.closeSockets()
		b.wg.Wait()
	})
	return err
}

func (b *Broker) closeSockets() error {
	err1 := b.external.Close()
	err2 := b.internal.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (b *Broker) stopped() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// Pipes are marked live before they can deliver anything, so a listener's first
// announcement is never mistaken for a stale one.
func (b *Broker) trackPipe(ev mangos.PipeEvent, p mangos.Pipe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev {
	case mangos.PipeEventAttaching:
		b.live[p.ID()] = true
	case mangos.PipeEventDetached:
		delete(b.live, p.ID())
	}
}

func (b *Broker) alive(route []byte) bool {
	if len(route) < 4 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[binary.BigEndian.Uint32(route)]
}

// frontend queues every client request.
func (b *Broker) frontend() {
	defer b.wg.Done()
	for {
		m, err := b.external.RecvMsg()
		if err != nil {
			if err == mangos.ErrClosed {
				return
			}
			log.Warnf("Client receive failed: %v", err)
			continue
		}
		b.work.Put(m)
	}
}

// backend forwards listener replies to their clients and records the listener as idle.
func (b *Broker) backend() {
	defer b.wg.Done()
	for {
		m, err := b.internal.RecvMsg()
		if err != nil {
			if err == mangos.ErrClosed {
				return
			}
			log.Warnf("Listener receive failed: %v", err)
			continue
		}
		route, reply, err := Unwrap(m.Body)
		switch {
		case err != nil:
			log.Errorf("Dropping listener frame: %v", err)
		case route != nil:
			out := mangos.NewMessage(len(reply))
			out.Header = append(out.Header[:0], route...)
			out.Body = append(out.Body, reply...)
			if err := b.external.SendMsg(out); err != nil {
				log.WithField("handle", fmt.Sprintf("%x", route)).Errorf("Reply failed: %v", err)
				out.Free()
			}
		}
		b.idle.Put(append([]byte(nil), m.Header...))
		m.Free()
	}
}

// dispatch pairs each queued request with the next idle listener, skipping listeners
// that have gone away while idle.
func (b *Broker) dispatch() {
	defer b.wg.Done()
	var req *mangos.Message
	for !b.stopped() {
		if req == nil {
			m, ok := b.work.GetTimeout(pollInterval)
			if !ok {
				continue
			}
			req = m
		}
		route, ok := b.idle.GetTimeout(pollInterval)
		if !ok || !b.alive(route) {
			continue
		}
		frame := Wrap(req.Header, req.Body)
		out := mangos.NewMessage(len(frame))
		out.Header = append(out.Header[:0], route...)
		out.Body = append(out.Body, frame...)
		if err := b.internal.SendMsg(out); err != nil {
			if err == mangos.ErrClosed {
				return
			}
			log.Warnf("Handing request to listener failed: %v", err)
			out.Free()
			continue
		}
		req.Free()
		req = nil
	}
	if req != nil {
		req.Free()
	}
}

// Wrap packs a client route and a payload into one internal frame. A nil route with no
// payload yields the empty frame a listener sends when it has nothing to answer.
func Wrap(route, payload []byte) []byte {
	if route == nil && len(payload) == 0 {
		return []byte{}
	}
	frame := make([]byte, 4, 4+len(route)+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(route)))
	frame = append(frame, route...)
	return append(frame, payload...)
}

// Unwrap splits a frame built by Wrap. The returned slices alias frame.
func Unwrap(frame []byte) (route, payload []byte, err error) {
	if len(frame) == 0 {
		return nil, nil, nil
	}
	if len(frame) < 4 {
		return nil, nil, errors.Errorf("frame of %d bytes is too short", len(frame))
	}
	n := binary.BigEndian.Uint32(frame)
	if uint64(n) > uint64(len(frame)-4) {
		return nil, nil, errors.Errorf("frame route of %d bytes overruns %d-byte frame", n, len(frame))
	}
	return frame[4 : 4+n], frame[4+n:], nil
}
