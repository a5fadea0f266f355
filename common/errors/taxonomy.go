package errors

import (
	"fmt"
	"net/http"
)

// PathResolutionError is returned when a path is not present in a tree's path index.
// Handlers turn it into {status:false}; it never propagates as a failure of the caller.
type PathResolutionError struct {
	Path string
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("no such path: %q", e.Path)
}

// ProtocolError reports a malformed or unroutable request along with the status code
// the response should carry.
type ProtocolError struct {
	Code    int
	Message string
}

func NewProtocolError(code int, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// PersistenceError wraps a disk failure while saving or loading a tree mirror.
type PersistenceError struct {
	Op  string
	Dir string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Dir, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Detail renders the error as the structured failure body sent to clients.
func (e *PersistenceError) Detail() map[string]interface{} {
	return map[string]interface{}{
		"status":    false,
		"message":   fmt.Sprintf("could not %s database at %s", e.Op, e.Dir),
		"exception": e.Err.Error(),
	}
}

// BackendQueryError is returned when the container backend could not be queried
// within the configured retry budget.
type BackendQueryError struct {
	Service string
	Err     error
}

func (e *BackendQueryError) Error() string {
	return fmt.Sprintf("container backend query for service %q failed: %v", e.Service, e.Err)
}

func (e *BackendQueryError) Unwrap() error {
	return e.Err
}
