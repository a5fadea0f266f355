// Package container tracks jobs whose work is delegated to a container manager: it
// queries the manager for a service's state and tears the service down once every job
// that shares it has finished.
package container

//go:generate mockgen -source=backend.go -package=container -destination=backend_mock.go

import (
	"context"
)

type State string

const (
	StateRunning  State = "running"
	StateFailed   State = "failed"
	StateComplete State = "complete"
	StateUnknown  State = "unknown"
)

func (s State) Terminal() bool {
	return s == StateFailed || s == StateComplete
}

// ParseState maps a manager-reported state onto State. Anything unrecognized is unknown.
func ParseState(s string) State {
	switch State(s) {
	case StateRunning, StateFailed, StateComplete:
		return State(s)
	}
	return StateUnknown
}

// Backend is the side channel to a container manager.
type Backend interface {
	Status(ctx context.Context, service string) (State, error)
	Teardown(ctx context.Context, service string) error
}
