// Package orchestrator owns the frame store and the capability subscription
// registry, and drives the analysis engine's enabled-capability set from the
// union of live subscriptions.
//
// Union semantics:
//
//	consumer A: Subscribe(Waveform)         → engine.SetEnabled(Waveform)
//	consumer B: Subscribe(Pitch)            → engine.SetEnabled(Waveform|Pitch)
//	consumer A: sub.Close()                 → engine.SetEnabled(Pitch)
//	consumer A: sub.Close() (again)         → no-op, no push
//
// Every subscribe and every effective unsubscribe recomputes the union and
// pushes it to the engine exactly once. A live subscription is never mutated;
// a consumer whose needs change subscribes anew and closes the old handle.
package orchestrator

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/framestore"
)

// Engine is the analysis engine's enable API.
//
// SetEnabled is fire-and-forget: the orchestrator neither waits on nor
// inspects the outcome. It is called while the registry lock is held, so an
// implementation MUST NOT call back into the Orchestrator.
type Engine interface {
	SetEnabled(caps capability.Set)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(caps capability.Set)

// SetEnabled implements Engine.
func (f EngineFunc) SetEnabled(caps capability.Set) { f(caps) }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for subscription lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// snapshot is the immutable registry view published after every mutation.
type snapshot struct {
	union   capability.Set
	entries []Entry
}

// Entry describes one live subscription in a snapshot.
type Entry struct {
	ID           uuid.UUID
	ConsumerID   string
	Capabilities capability.Set
	Since        time.Time
}

// Orchestrator maps live consumer interests onto the engine enable signal.
//
// Thread-safety: all methods safe for concurrent use.
type Orchestrator struct {
	store  framestore.Store
	engine Engine
	logger *slog.Logger

	mu   sync.Mutex // Serializes registry mutation and engine pushes
	subs map[uuid.UUID]*Subscription

	current atomic.Pointer[snapshot]

	subscribes   atomic.Uint64
	unsubscribes atomic.Uint64
	pushes       atomic.Uint64
}

// New creates an orchestrator over store. engine may be nil, in which case
// the union is tracked but not pushed anywhere.
func New(store framestore.Store, engine Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		engine: engine,
		logger: slog.Default(),
		subs:   make(map[uuid.UUID]*Subscription),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.current.Store(&snapshot{union: capability.None})
	return o
}

// Store returns the frame store readers poll.
func (o *Orchestrator) Store() framestore.Store {
	return o.store
}

// Publish appends a produced frame to the store. Producer path only.
func (o *Orchestrator) Publish(frame *framestore.Frame) int64 {
	return o.store.Append(frame)
}

// SetCapacity resizes the store, invalidating every reader cursor.
func (o *Orchestrator) SetCapacity(n int) {
	o.store.SetCapacity(n)
}

// Subscribe registers caps for consumerID and returns the owning handle.
//
// The union is recomputed and pushed to the engine before Subscribe returns.
// Subscribe never fails; an empty set is a valid (if useless) subscription.
func (o *Orchestrator) Subscribe(consumerID string, caps capability.Set) *Subscription {
	sub := &Subscription{
		id:         uuid.New(),
		consumerID: consumerID,
		caps:       caps,
		since:      time.Now(),
		owner:      o,
	}

	o.mu.Lock()
	o.subs[sub.id] = sub
	union := o.publishLocked()
	o.mu.Unlock()

	o.subscribes.Add(1)
	o.logger.Debug("orchestrator: subscribed",
		"consumer_id", consumerID,
		"subscription_id", sub.id,
		"capabilities", caps.String(),
		"union", union.String(),
	)
	return sub
}

// Unsubscribe disposes sub. Disposing a nil, foreign or already disposed
// handle is a no-op.
func (o *Orchestrator) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.owner != o {
		return
	}
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}

	o.mu.Lock()
	delete(o.subs, sub.id)
	union := o.publishLocked()
	o.mu.Unlock()

	o.unsubscribes.Add(1)
	o.logger.Debug("orchestrator: unsubscribed",
		"consumer_id", sub.consumerID,
		"subscription_id", sub.id,
		"union", union.String(),
	)
}

// Union returns the capability set currently pushed to the engine.
func (o *Orchestrator) Union() capability.Set {
	return o.current.Load().union
}

// Subscriptions returns the live entries ordered by subscription time.
func (o *Orchestrator) Subscriptions() []Entry {
	entries := o.current.Load().entries
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// publishLocked rebuilds the snapshot from the registry, stores it and pushes
// the union to the engine. Caller holds o.mu.
func (o *Orchestrator) publishLocked() capability.Set {
	union := capability.None
	entries := make([]Entry, 0, len(o.subs))
	for _, sub := range o.subs {
		union = union.Union(sub.caps)
		entries = append(entries, Entry{
			ID:           sub.id,
			ConsumerID:   sub.consumerID,
			Capabilities: sub.caps,
			Since:        sub.since,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Since.Before(entries[j].Since)
	})

	o.current.Store(&snapshot{union: union, entries: entries})

	if o.engine != nil {
		o.engine.SetEnabled(union)
		o.pushes.Add(1)
	}
	return union
}
