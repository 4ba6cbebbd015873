package scan

import "context"

// EventKind identifies what a worker is reporting.
type EventKind int

const (
	// EventPortOpen is emitted once per open port, as soon as it is found.
	EventPortOpen EventKind = iota + 1

	// EventWorkerDone is emitted when a worker has exhausted its candidates
	// or was cancelled. Attempted carries its probe count.
	EventWorkerDone
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case EventPortOpen:
		return "port-open"
	case EventWorkerDone:
		return "worker-done"
	default:
		return "unknown"
	}
}

// Event is a progress notification from a worker. Events replace direct
// printing from workers, which would interleave across goroutines.
type Event struct {
	Kind EventKind

	// Worker is the offset of the emitting worker.
	Worker uint16

	// Port is set for EventPortOpen.
	Port uint16

	// Attempted is set for EventWorkerDone.
	Attempted int
}

// emit delivers ev unless events is nil. It gives up when ctx is done so a
// consumer that stopped reading cannot wedge a cancelled scan.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
