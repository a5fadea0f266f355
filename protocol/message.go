// Package protocol implements the text framing carried inside broker messages: a
// request line, optional headers and a one-line JSON body; responses mirror an HTTP
// status line with a JSON body.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	jterrors "github.com/jobtree/jobtree/common/errors"
)

const (
	VerbGet  = "GET"
	VerbPost = "POST"

	defaultProto = "HTTP/1.1"
	contentType  = "application/json"
)

// Body is the JSON payload of a request.
type Body struct {
	Action Action                 `json:"action"`
	Meta   map[string]interface{} `json:"meta"`
}

type Request struct {
	Verb    string
	Path    string
	Proto   string
	Headers map[string]string
	Body    Body
	HasBody bool
}

// ParseRequest parses "<VERB> <PATH> [HTTP/1.x]", optional "Name: value" header lines,
// and a JSON body on the last non-empty line. Errors are *errors.ProtocolError.
func ParseRequest(b []byte) (*Request, error) {
	lines := splitLines(b)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, jterrors.NewProtocolError(http.StatusBadRequest, "empty request")
	}
	fields := strings.Fields(lines[0])
	if len(fields) < 2 || len(fields) > 3 {
		return nil, jterrors.NewProtocolError(http.StatusBadRequest, "malformed request line %q", lines[0])
	}
	r := &Request{
		Verb:    strings.ToUpper(fields[0]),
		Path:    fields[1],
		Proto:   defaultProto,
		Headers: map[string]string{},
	}
	if len(fields) == 3 {
		if !strings.HasPrefix(fields[2], "HTTP/") {
			return nil, jterrors.NewProtocolError(http.StatusBadRequest, "malformed protocol %q", fields[2])
		}
		r.Proto = fields[2]
	}
	if r.Verb != VerbGet && r.Verb != VerbPost {
		return nil, jterrors.NewProtocolError(http.StatusMethodNotAllowed, "verb %q not supported", fields[0])
	}

	rest := lines[1:]
	last := len(rest) - 1
	for last >= 0 && strings.TrimSpace(rest[last]) == "" {
		last--
	}
	if last >= 0 && strings.HasPrefix(strings.TrimSpace(rest[last]), "{") {
		if err := json.Unmarshal([]byte(rest[last]), &r.Body); err != nil {
			return nil, jterrors.NewProtocolError(http.StatusBadRequest, "malformed JSON body: %v", err)
		}
		if r.Body.Meta == nil {
			r.Body.Meta = map[string]interface{}{}
		}
		r.HasBody = true
		rest = rest[:last]
	}
	for _, line := range rest {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, jterrors.NewProtocolError(http.StatusBadRequest, "malformed header %q", line)
		}
		r.Headers[http.CanonicalHeaderKey(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return r, nil
}

// FormatRequest renders a request. A nil body produces a bodyless request.
func FormatRequest(verb, path string, body *Body) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\n", verb, path, defaultProto)
	if body == nil {
		return buf.Bytes(), nil
	}
	fmt.Fprintf(&buf, "Content-Type: %s\n\n", contentType)
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type Response struct {
	Code int
	Body map[string]interface{}
}

// Status reports the body's "status" field, false if absent.
func (r *Response) Status() bool {
	b, _ := r.Body["status"].(bool)
	return b
}

// FormatResponse renders code and the JSON encoding of body.
func FormatResponse(code int, body interface{}) []byte {
	payload, err := json.Marshal(body)
	if err != nil {
		code = http.StatusInternalServerError
		payload, _ = json.Marshal(map[string]interface{}{
			"status":  false,
			"message": "could not encode response",
			"error":   err.Error(),
		})
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d %s\nContent-Type: %s\n\n", defaultProto, code, http.StatusText(code), contentType)
	buf.Write(payload)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// ErrorResponse renders err as a JSON failure body. Protocol errors keep their status
// code; anything else is a 500.
func ErrorResponse(err error) []byte {
	code := http.StatusInternalServerError
	msg := err.Error()
	if pe, ok := err.(*jterrors.ProtocolError); ok {
		code = pe.Code
		msg = pe.Message
	}
	return FormatResponse(code, map[string]interface{}{"status": false, "message": msg})
}

// ParseResponse parses a response produced by FormatResponse.
func ParseResponse(b []byte) (*Response, error) {
	lines := splitLines(b)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	fields := strings.SplitN(lines[0], " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return nil, fmt.Errorf("malformed status line %q", lines[0])
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("malformed status code %q", fields[1])
	}
	resp := &Response{Code: code, Body: map[string]interface{}{}}
	for i := len(lines) - 1; i > 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			break
		}
		if err := json.Unmarshal([]byte(lines[i]), &resp.Body); err != nil {
			return nil, fmt.Errorf("malformed response body: %v", err)
		}
		break
	}
	return resp, nil
}

func splitLines(b []byte) []string {
	var lines []string
	s := bufio.NewScanner(bytes.NewReader(b))
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for s.Scan() {
		lines = append(lines, strings.TrimRight(s.Text(), "\r"))
	}
	return lines
}
