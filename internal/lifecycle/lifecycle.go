package lifecycle

import "sync/atomic"

// Phase is the process lifecycle stage reported by /health.
type Phase int32

const (
	Starting Phase = iota
	Serving
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase. main moves Starting -> Serving once the
// scheduler and listener are up, and -> ShuttingDown on SIGTERM/SIGINT.
func SetPhase(p Phase) {
	phase.Store(int32(p))
}

// CurrentPhase returns the recorded phase.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// SetShuttingDown is shorthand for SetPhase(ShuttingDown) or SetPhase(Serving).
func SetShuttingDown(v bool) {
	if v {
		SetPhase(ShuttingDown)
		return
	}
	SetPhase(Serving)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return CurrentPhase() == ShuttingDown
}
