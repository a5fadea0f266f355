package protocol

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// register transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

const DefaultClientTimeout = 30 * time.Second

// Client sends requests to a broker over a req socket. A Client serializes its own
// requests; use several Clients for concurrent traffic.
type Client struct {
	sock mangos.Socket
	mu   sync.Mutex
}

// Dial connects to the broker at url. Replies not received within timeout fail with
// mangos.ErrRecvTimeout.
func Dial(url string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	sock, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetOption(mangos.OptionRecvDeadline, timeout); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(url); err != nil {
		sock.Close()
		return nil, errors.Wrapf(err, "dialing %s", url)
	}
	return &Client{sock: sock}, nil
}

// Do sends a request carrying action and meta and waits for the response.
func (c *Client) Do(verb, path string, action Action, meta map[string]interface{}) (*Response, error) {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	b, err := FormatRequest(verb, path, &Body{Action: action, Meta: meta})
	if err != nil {
		return nil, err
	}
	return c.roundTrip(b)
}

// Get fetches path through the bodyless GET form.
func (c *Client) Get(path string) (*Response, error) {
	b, err := FormatRequest(VerbGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(b)
}

func (c *Client) roundTrip(b []byte) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sock.Send(b); err != nil {
		return nil, errors.Wrap(err, "sending request")
	}
	reply, err := c.sock.Recv()
	if err != nil {
		return nil, errors.Wrap(err, "receiving response")
	}
	return ParseResponse(reply)
}

func (c *Client) Close() error {
	return c.sock.Close()
}
