package protocol

import (
	"fmt"
	"net/http"
	"strings"

	jterrors "github.com/jobtree/jobtree/common/errors"
)

// Action names a request's operation. The set is closed: servers check at startup that
// every Action has a handler.
type Action string

const (
	ActionRun         Action = "run"
	ActionGet         Action = "get"
	ActionSearch      Action = "search"
	ActionInfo        Action = "info"
	ActionDone        Action = "done"
	ActionStatus      Action = "status"
	ActionHello       Action = "hello"
	ActionQuit        Action = "quit"
	ActionFileIOSetup Action = "fileiosetup"
)

// Actions lists every recognized action.
var Actions = []Action{
	ActionRun,
	ActionGet,
	ActionSearch,
	ActionInfo,
	ActionDone,
	ActionStatus,
	ActionHello,
	ActionQuit,
	ActionFileIOSetup,
}

func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// requiredMeta lists the meta fields an action cannot do without.
var requiredMeta = map[Action][]string{
	ActionRun:    {"cmd", "jid"},
	ActionGet:    {"path"},
	ActionSearch: {"key", "value"},
	ActionInfo:   {"key", "value"},
	ActionDone:   {"key", "value"},
	ActionStatus: {"key", "value"},
	ActionHello:  {"askAbout"},
}

// Hello topics.
const (
	AskTimestamp = "timestamp"
	AskSysinfo   = "sysinfo"
	AskEchoBack  = "echoBack"
)

// Validate checks that the request names a known action and carries the fields that
// action requires. A GET addresses the tree through its URL path, so it needs no body.
func (r *Request) Validate() error {
	if r.Verb == VerbGet && !r.HasBody {
		return nil
	}
	if !r.HasBody {
		return jterrors.NewProtocolError(http.StatusBadRequest, "missing request body")
	}
	if !r.Body.Action.Valid() {
		return jterrors.NewProtocolError(http.StatusBadRequest, "unknown action %q", r.Body.Action)
	}
	if r.Verb == VerbGet && r.Body.Action == ActionGet {
		return nil
	}
	for _, field := range requiredMeta[r.Body.Action] {
		if _, ok := r.Body.Meta[field]; !ok {
			return jterrors.NewProtocolError(http.StatusBadRequest, "missing field %q", field)
		}
	}
	if r.Body.Action == ActionRun && strings.TrimSpace(r.Body.MetaString("cmd")) == "" {
		return jterrors.NewProtocolError(http.StatusBadRequest, "empty field %q", "cmd")
	}
	return nil
}

// MetaString returns meta[key] as a string. Non-string values are formatted.
func (b Body) MetaString(key string) string {
	v, ok := b.Meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MetaBool returns meta[key] as a bool, accepting JSON booleans and the strings
// "true"/"false". def is returned when the key is absent or unrecognized.
func (b Body) MetaBool(key string, def bool) bool {
	switch v := b.Meta[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "True", "1":
			return true
		case "false", "False", "0":
			return false
		}
	}
	return def
}

// MetaFloat returns meta[key] as a number, or def.
func (b Body) MetaFloat(key string, def float64) float64 {
	if v, ok := b.Meta[key].(float64); ok {
		return v
	}
	return def
}
