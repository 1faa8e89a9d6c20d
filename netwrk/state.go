package netwrk

import (
	"sync"

	"github.com/xiaogangfan/rocketmq/log"
)

type LinkState int

const (
	StateNone LinkState = iota
	StateStarting
	StateRunning
	StateClosing
	StateClosed
)

func (m LinkState) String() string {
	return [...]string{"None", "Starting", "Running", "Closing", "Closed"}[m]
}

// ModeStateMachine guards the lifecycle of a server or client.
type ModeStateMachine struct {
	LinkState
	sync.RWMutex
}

func NewModeStateMachine() *ModeStateMachine {
	return &ModeStateMachine{
		LinkState: StateNone,
	}
}

func (msm *ModeStateMachine) GetLinkState() LinkState {
	msm.RLock()
	defer msm.RUnlock()
	return msm.LinkState
}

func (msm *ModeStateMachine) TransitionToState(newState LinkState) (LinkState, bool) {
	msm.Lock()
	defer msm.Unlock()
	oldMode := msm.LinkState
	log.Debugf("Link attempts to transition from %v to %v", oldMode, newState)
	return oldMode, msm.transitionToStateUnderLock(newState)
}

func (msm *ModeStateMachine) transitionToStateUnderLock(newState LinkState) bool {
	//   StateNone ---> StateStarting ---> StateRunning ---> StateClosing ---> StateClosed
	//      |               |                                     ^
	//      |               |<- (start failed, back to None)      |
	//      |---------------------------------------------------- |
	switch msm.LinkState {
	case StateNone:
		switch newState {
		case StateStarting, StateClosing:
			msm.LinkState = newState
			return true
		default:
			return false // invalid transition
		}
	case StateStarting:
		switch newState {
		case StateNone, StateRunning:
			msm.LinkState = newState
			return true
		default:
			return false // invalid transition
		}
	case StateRunning:
		switch newState {
		case StateClosing:
			msm.LinkState = newState
			return true
		default:
			return false // invalid transition
		}
	case StateClosing:
		switch newState {
		case StateClosed:
			msm.LinkState = newState
			return true
		default:
			return false // invalid transition
		}
	default:
		return false
	}
}
