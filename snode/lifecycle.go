package snode

import "fmt"

type State int32

const (
	StateConstructed State = iota
	StateInitialized
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "Constructed"
	case StateInitialized:
		return "Initialized"
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateStopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// LifecycleError names the service and lifecycle step that failed
type LifecycleError struct {
	Service string
	Op      string
	Err     error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
