package execution

// State is the lifecycle phase of one execution.
type State string

const (
	// StatePending means the goal passed validation and is waiting for
	// its device.
	StatePending State = "pending"

	// StateAccepted means the device has been granted and the driver is
	// about to start.
	StateAccepted State = "accepted"

	// StateExecuting means the driver is running the command.
	StateExecuting State = "executing"

	// StateSucceeded is terminal: the driver completed normally.
	StateSucceeded State = "succeeded"

	// StateAborted is terminal: the engine stopped the execution, for a
	// timeout, a driver fault, or a device withdrawal.
	StateAborted State = "aborted"

	// StateCanceled is terminal: a caller asked for cancellation and it
	// took effect.
	StateCanceled State = "canceled"
)

// Terminal reports whether the state is final. Terminal states never
// change again.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateAborted, StateCanceled:
		return true
	}
	return false
}

// transitions lists the allowed forward moves. Terminal states have no
// successors.
var transitions = map[State][]State{
	StatePending:   {StateAccepted, StateAborted, StateCanceled},
	StateAccepted:  {StateExecuting, StateAborted, StateCanceled},
	StateExecuting: {StateSucceeded, StateAborted, StateCanceled},
}

// canTransition reports whether moving from one state to another is
// legal.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reason explains why an execution reached its terminal state.
type Reason string

const (
	ReasonCompleted         Reason = "completed"
	ReasonTimeout           Reason = "timeout"
	ReasonDriverFailure     Reason = "driver_failure"
	ReasonDeviceUnavailable Reason = "device_unavailable"
	ReasonCanceled          Reason = "canceled"
)
