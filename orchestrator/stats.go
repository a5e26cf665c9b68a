package orchestrator

import (
	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/framestore"
)

// Stats is a snapshot of orchestrator state.
type Stats struct {
	// Union is the capability set last pushed to the engine.
	Union capability.Set

	// Subscriptions is the number of live handles.
	Subscriptions int

	// Consumers maps consumer id to the union of its live handles.
	Consumers map[string]capability.Set

	// Subscribes and Unsubscribes count effective registry mutations.
	Subscribes   uint64
	Unsubscribes uint64

	// Pushes counts engine SetEnabled calls. Equals Subscribes+Unsubscribes
	// when an engine is attached.
	Pushes uint64

	// Store is the frame store snapshot taken at the same time.
	Store framestore.Stats
}

// Stats returns a non-blocking snapshot.
func (o *Orchestrator) Stats() Stats {
	snap := o.current.Load()

	consumers := make(map[string]capability.Set, len(snap.entries))
	for _, e := range snap.entries {
		consumers[e.ConsumerID] = consumers[e.ConsumerID].Union(e.Capabilities)
	}

	return Stats{
		Union:         snap.union,
		Subscriptions: len(snap.entries),
		Consumers:     consumers,
		Subscribes:    o.subscribes.Load(),
		Unsubscribes:  o.unsubscribes.Load(),
		Pushes:        o.pushes.Load(),
		Store:         o.store.Stats(),
	}
}
