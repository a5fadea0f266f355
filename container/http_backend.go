package container

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
)

const DefaultHttpTries = 3

func MakePesterClient(tries int) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = tries
	client.LogHook = func(e pester.ErrEntry) {
		log.Errorf("Retrying after failed attempt: %+v", e)
	}
	return client
}

type Client interface {
	Do(req *http.Request) (resp *http.Response, err error)
}

// HTTPBackend talks to a container manager exposing
//
//	GET    <root>/services/<name>  -> {"state": "running"|"failed"|"complete"|...}
//	DELETE <root>/services/<name>
type HTTPBackend struct {
	rootURI string
	client  Client
}

func NewHTTPBackend(rootURI string, client Client) *HTTPBackend {
	if client == nil {
		client = MakePesterClient(DefaultHttpTries)
	}
	return &HTTPBackend{rootURI: strings.TrimSuffix(rootURI, "/"), client: client}
}

func (b *HTTPBackend) serviceURI(service string) string {
	return b.rootURI + "/services/" + url.PathEscape(service)
}

func (b *HTTPBackend) Status(ctx context.Context, service string) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.serviceURI(service), nil)
	if err != nil {
		return StateUnknown, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return StateUnknown, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StateUnknown, fmt.Errorf("status query for %s: unexpected response %s", service, resp.Status)
	}
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return StateUnknown, fmt.Errorf("status query for %s: %v", service, err)
	}
	return ParseState(body.State), nil
}

func (b *HTTPBackend) Teardown(ctx context.Context, service string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.serviceURI(service), nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("teardown of %s: unexpected response %s", service, resp.Status)
}
