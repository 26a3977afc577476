package runner

// State is the lifecycle stage of a Runner.
type State int32

const (
	StateIdle State = iota
	StateWaitingForActors
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForActors:
		return "waiting-for-actors"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reason says why a run ended.
type Reason string

const (
	// ReasonCompleted means the execution bound was reached.
	ReasonCompleted Reason = "completed"
	// ReasonDuration means the run duration elapsed.
	ReasonDuration Reason = "duration elapsed"
	// ReasonStopped means Stop was called.
	ReasonStopped Reason = "stopped"
	// ReasonCancelled means the caller's context was cancelled.
	ReasonCancelled Reason = "cancelled"
	// ReasonInsufficientActors means the actor pool never had enough actors.
	ReasonInsufficientActors Reason = "insufficient actors"
	// ReasonFatal means an unrecoverable error ended the run.
	ReasonFatal Reason = "fatal error"
)
