package orchestrator

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/analysis-core/capability"
)

// Subscription is a consumer's handle on a capability set.
//
// The set is fixed at creation. Close removes it from the union; a consumer
// whose needs change subscribes again and closes this handle afterwards.
type Subscription struct {
	id         uuid.UUID
	consumerID string
	caps       capability.Set
	since      time.Time
	owner      *Orchestrator
	closed     atomic.Bool
}

// ID returns the unique handle id.
func (s *Subscription) ID() uuid.UUID { return s.id }

// ConsumerID returns the id of the consumer that owns the handle.
func (s *Subscription) ConsumerID() string { return s.consumerID }

// Capabilities returns the subscribed set.
func (s *Subscription) Capabilities() capability.Set { return s.caps }

// Closed reports whether the handle was disposed.
func (s *Subscription) Closed() bool { return s.closed.Load() }

// Close disposes the handle. Safe to call more than once and on nil.
func (s *Subscription) Close() {
	if s == nil || s.owner == nil {
		return
	}
	s.owner.Unsubscribe(s)
}
