package protocol

import (
	"net/http"
	"testing"

	jterrors "github.com/jobtree/jobtree/common/errors"
)

func TestParseRequest(t *testing.T) {
	raw := "POST /v1/jobs HTTP/1.1\nContent-Type: application/json\nx-trace: abc\n\n" +
		`{"action":"run","meta":{"cmd":"echo hi","jid":"t1","threaded":true}}` + "\n"
	r, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Verb != "POST" || r.Path != "/v1/jobs" || r.Proto != "HTTP/1.1" {
		t.Fatalf("bad request line %+v", r)
	}
	if r.Headers["X-Trace"] != "abc" || r.Headers["Content-Type"] != "application/json" {
		t.Fatalf("bad headers %v", r.Headers)
	}
	if !r.HasBody || r.Body.Action != ActionRun || r.Body.MetaString("cmd") != "echo hi" {
		t.Fatalf("bad body %+v", r.Body)
	}
	if !r.Body.MetaBool("threaded", false) {
		t.Fatalf("expected threaded")
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseMinimalGet(t *testing.T) {
	r, err := ParseRequest([]byte("GET /v1/_0/cmd"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.HasBody || r.Verb != VerbGet || r.Path != "/v1/_0/cmd" {
		t.Fatalf("unexpected %+v", r)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("bodyless GET should validate: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		raw  string
		code int
	}{
		{"", http.StatusBadRequest},
		{"POST", http.StatusBadRequest},
		{"DELETE /x", http.StatusMethodNotAllowed},
		{"POST /x FTP/1.0", http.StatusBadRequest},
		{"POST /x\n\n{not json", http.StatusBadRequest},
		{"POST /x\nnoheader\n\n{}", http.StatusBadRequest},
	}
	for _, c := range cases {
		_, err := ParseRequest([]byte(c.raw))
		pe, ok := err.(*jterrors.ProtocolError)
		if !ok || pe.Code != c.code {
			t.Fatalf("ParseRequest(%q): expected %d, got %v", c.raw, c.code, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{`POST /x` + "\n" + `{"action":"run","meta":{"cmd":"ls","jid":"j"}}`, true},
		{`POST /x` + "\n" + `{"action":"run","meta":{"jid":"j"}}`, false},
		{`POST /x` + "\n" + `{"action":"run","meta":{"cmd":"","jid":"j"}}`, false},
		{`POST /x` + "\n" + `{"action":"run","meta":{"cmd":" \t ","jid":"j"}}`, false},
		{`POST /x` + "\n" + `{"action":"explode","meta":{}}`, false},
		{`POST /x` + "\n" + `{"action":"status","meta":{"key":"jid"}}`, false},
		{`POST /x` + "\n" + `{"action":"quit"}`, true},
		{`POST /x`, false},
		{`POST /x` + "\n" + `{"action":"hello","meta":{"askAbout":"timestamp"}}`, true},
		{`GET /x` + "\n" + `{"action":"get","meta":{}}`, true},
	}
	for _, c := range cases {
		r, err := ParseRequest([]byte(c.raw))
		if err != nil {
			t.Fatalf("parse %q: %v", c.raw, err)
		}
		if err := r.Validate(); (err == nil) != c.ok {
			t.Fatalf("Validate(%q) = %v; expected ok=%v", c.raw, err, c.ok)
		}
	}
}

func TestRequestRoundTrip(t *testing.T) {
	b, err := FormatRequest(VerbPost, "/v1", &Body{Action: ActionSearch, Meta: map[string]interface{}{"key": "jid", "value": "t1"}})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	r, err := ParseRequest(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Body.Action != ActionSearch || r.Body.MetaString("value") != "t1" {
		t.Fatalf("unexpected %+v", r.Body)
	}
}

func TestResponses(t *testing.T) {
	resp, err := ParseResponse(FormatResponse(http.StatusOK, map[string]interface{}{"status": true, "n": 2}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Code != 200 || !resp.Status() || resp.Body["n"] != float64(2) {
		t.Fatalf("unexpected %+v", resp)
	}

	resp, err = ParseResponse(ErrorResponse(jterrors.NewProtocolError(http.StatusBadRequest, "missing field %q", "cmd")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Code != 400 || resp.Status() || resp.Body["message"] != `missing field "cmd"` {
		t.Fatalf("unexpected %+v", resp)
	}

	if _, err := ParseResponse([]byte("nonsense")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestActionsAreValid(t *testing.T) {
	for _, a := range Actions {
		if !a.Valid() {
			t.Fatalf("%s should be valid", a)
		}
	}
	if Action("push").Valid() {
		t.Fatalf("push is not a core action")
	}
}
