package server

import "sync/atomic"

// State is the lifecycle state of a Server.
type State uint32

const (
	// Serving is the initial state: requests are dispatched.
	Serving State = iota
	// ShuttingDown is terminal, entered on exit_server, Close or cancellation of the serve context.
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Serving:
		return "Serving"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// AtomicState holds a State that can be read and transitioned concurrently.
type AtomicState struct {
	state atomic.Uint32
}

func (st *AtomicState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicState) Get() State {
	return State(st.state.Load())
}

func (st *AtomicState) IsServing() bool {
	return st.Get() == Serving
}

func (st *AtomicState) IsShuttingDown() bool {
	return st.Get() == ShuttingDown
}

// ToShuttingDown performs the only transition. It returns false when the state already was ShuttingDown.
func (st *AtomicState) ToShuttingDown() bool {
	return st.state.CompareAndSwap(uint32(Serving), uint32(ShuttingDown))
}
