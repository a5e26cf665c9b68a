package emitter

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/analysis-core/consumer"
	"github.com/e7canasta/analysis-core/orchestrator"
)

// Snapshot is one telemetry message.
type Snapshot struct {
	InstanceID string    `msgpack:"instance_id"`
	Timestamp  time.Time `msgpack:"timestamp"`

	Union         string            `msgpack:"union"`
	Subscriptions int               `msgpack:"subscriptions"`
	Consumers     map[string]string `msgpack:"consumers"`
	Pushes        uint64            `msgpack:"pushes"`

	Store   StoreSnapshot    `msgpack:"store"`
	Windows []WindowSnapshot `msgpack:"windows"`
}

// StoreSnapshot mirrors framestore.Stats.
type StoreSnapshot struct {
	Capacity    int    `msgpack:"capacity"`
	Generation  uint64 `msgpack:"generation"`
	Latest      int64  `msgpack:"latest"`
	Available   int    `msgpack:"available"`
	Appended    uint64 `msgpack:"appended"`
	Overwritten uint64 `msgpack:"overwritten"`
	Gaps        uint64 `msgpack:"gaps"`
	TornReads   uint64 `msgpack:"torn_reads"`
}

// WindowSnapshot mirrors consumer.Stats.
type WindowSnapshot struct {
	ID           string  `msgpack:"id"`
	Capabilities string  `msgpack:"capabilities"`
	Surface      string  `msgpack:"surface"`
	PeriodMS     float64 `msgpack:"period_ms"`
	Cursor       int64   `msgpack:"cursor"`
	Ticks        uint64  `msgpack:"ticks"`
	Frames       uint64  `msgpack:"frames"`
	Gaps         uint64  `msgpack:"gaps"`
	Repaints     uint64  `msgpack:"repaints"`
}

// Collect builds a snapshot from orchestrator and window stats.
func Collect(instanceID string, orch orchestrator.Stats, windows []consumer.Stats) Snapshot {
	consumers := make(map[string]string, len(orch.Consumers))
	for id, caps := range orch.Consumers {
		consumers[id] = caps.String()
	}

	snap := Snapshot{
		InstanceID:    instanceID,
		Timestamp:     time.Now().UTC(),
		Union:         orch.Union.String(),
		Subscriptions: orch.Subscriptions,
		Consumers:     consumers,
		Pushes:        orch.Pushes,
		Store: StoreSnapshot{
			Capacity:    orch.Store.Capacity,
			Generation:  orch.Store.Generation,
			Latest:      orch.Store.Latest,
			Available:   orch.Store.Available,
			Appended:    orch.Store.Appended,
			Overwritten: orch.Store.Overwritten,
			Gaps:        orch.Store.Gaps,
			TornReads:   orch.Store.TornReads,
		},
		Windows: make([]WindowSnapshot, 0, len(windows)),
	}

	for _, w := range windows {
		snap.Windows = append(snap.Windows, WindowSnapshot{
			ID:           w.ID,
			Capabilities: w.Capabilities.String(),
			Surface:      w.Surface.String(),
			PeriodMS:     float64(w.Loop.Period) / float64(time.Millisecond),
			Cursor:       w.Loop.Cursor,
			Ticks:        w.Loop.Ticks,
			Frames:       w.Loop.Frames,
			Gaps:         w.Loop.Gaps,
			Repaints:     w.Loop.Repaints,
		})
	}
	return snap
}

// Encode serializes a snapshot as msgpack.
func Encode(s Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return s, nil
}
