package fsbridge

// State is the lifecycle state of the bound directory handle.
type State int

const (
	StateUnbound State = iota
	StatePending
	StateGranted
	StateStale
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StatePending:
		return "pending"
	case StateGranted:
		return "granted"
	case StateStale:
		return "stale"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Usable reports whether the handle may be used without a user gesture.
func (s State) Usable() bool {
	return s == StateGranted
}

// NeedsGesture reports whether recovery requires an explicit user action.
func (s State) NeedsGesture() bool {
	return s == StateStale || s == StateDenied || s == StatePending
}

// Event drives State transitions.
type Event int

const (
	EventPicked Event = iota
	EventPickCancelled
	EventPermissionGranted
	EventPermissionPrompt
	EventPermissionDenied
	EventProbeOK
	EventProbeFailed
	EventCleared
)

func (e Event) String() string {
	switch e {
	case EventPicked:
		return "picked"
	case EventPickCancelled:
		return "pick-cancelled"
	case EventPermissionGranted:
		return "permission-granted"
	case EventPermissionPrompt:
		return "permission-prompt"
	case EventPermissionDenied:
		return "permission-denied"
	case EventProbeOK:
		return "probe-ok"
	case EventProbeFailed:
		return "probe-failed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Next returns the state after e. A stale handle is handled like a denied
// one: only a fresh grant followed by a successful probe, or a re-pick,
// brings it back.
func Next(s State, e Event) State {
	switch e {
	case EventCleared:
		return StateUnbound
	case EventPicked:
		return StatePending
	}
	switch s {
	case StateUnbound:
		return StateUnbound
	case StatePending:
		switch e {
		case EventPermissionGranted, EventProbeOK:
			return StateGranted
		case EventPermissionDenied:
			return StateDenied
		case EventProbeFailed:
			return StateStale
		}
	case StateGranted:
		switch e {
		case EventPermissionPrompt:
			return StatePending
		case EventPermissionDenied:
			return StateDenied
		case EventProbeFailed:
			return StateStale
		}
	case StateStale:
		switch e {
		case EventProbeOK:
			return StateGranted
		case EventPermissionDenied:
			return StateDenied
		}
	case StateDenied:
		switch e {
		case EventPermissionGranted:
			return StatePending
		}
	}
	return s
}
