package surface

import "fmt"

// State is the backend negotiation state of one consumer window.
type State int

const (
	// Unresolved: no surface has been acquired yet.
	Unresolved State = iota

	// Accelerated: a GPU-backed surface is mounted and wired.
	Accelerated

	// SoftwareFallback: the software surface is mounted. Terminal.
	SoftwareFallback
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Accelerated:
		return "accelerated"
	case SoftwareFallback:
		return "software_fallback"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// edges is the complete transition table. Anything not listed is rejected,
// which makes SoftwareFallback terminal by construction.
var edges = map[State][]State{
	Unresolved:  {Accelerated, SoftwareFallback},
	Accelerated: {SoftwareFallback},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Backend identifies the kind of a mounted surface.
type Backend int

const (
	BackendNone Backend = iota
	BackendAccelerated
	BackendSoftware
)

func (b Backend) String() string {
	switch b {
	case BackendAccelerated:
		return "accelerated"
	case BackendSoftware:
		return "software"
	default:
		return "none"
	}
}
