package lifecycle

import "context"

// Phase orders shutdown hooks. Phases run one after another; hooks inside a phase run concurrently.
type Phase int

const (
	// PhaseDrain stops advertising readiness.
	PhaseDrain Phase = iota
	// PhaseStop stops servers and workers.
	PhaseStop
	// PhaseRelease closes stores and clients.
	PhaseRelease
)

func (p Phase) String() string {
	switch p {
	case PhaseDrain:
		return "drain"
	case PhaseStop:
		return "stop"
	case PhaseRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
