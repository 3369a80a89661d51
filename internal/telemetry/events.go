// Package telemetry is the core's one touchpoint with logging: it emits a
// small set of structured events to a named sink and silently discards them
// if no sink is installed. Logging destinations, formats, and levels are an
// external collaborator's concern (see SPEC_FULL.md §2); this package only
// defines what gets said, grounded on the teacher's habit of building a
// *logging.Entry once per component and reusing it (see
// controller/api/destination/server.go's `s.log`).
package telemetry

import (
	"sync"

	logging "github.com/sirupsen/logrus"
)

// Kind names one of the fixed structured event types the core emits.
type Kind string

const (
	Park          Kind = "Park"
	Unpark        Kind = "Unpark"
	ScheduleStart Kind = "ScheduleStart"
	ScheduleStop  Kind = "ScheduleStop"
	OperatesEvent Kind = "OperatesEvent"
	ShutdownEvent Kind = "ShutdownEvent"
)

// Registry is a named collection of logrus entries, one per worker, so that
// every emitted event carries a stable "worker" field without the caller
// re-specifying it at each call site.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*logging.Entry
	base    *logging.Logger
}

// NewRegistry returns a Registry that logs through base. A nil base
// discards all events — the "missing sink" case.
func NewRegistry(base *logging.Logger) *Registry {
	return &Registry{entries: make(map[int]*logging.Entry), base: base}
}

// For returns the entry for a given worker index, creating it on first use.
func (r *Registry) For(workerIndex int) *Entry {
	if r == nil || r.base == nil {
		return &Entry{}
	}
	r.mu.RLock()
	e, ok := r.entries[workerIndex]
	r.mu.RUnlock()
	if ok {
		return &Entry{entry: e}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[workerIndex]; ok {
		return &Entry{entry: e}
	}
	e = r.base.WithField("worker", workerIndex)
	r.entries[workerIndex] = e
	return &Entry{entry: e}
}

// Entry emits events for one worker. A zero-value Entry discards events.
type Entry struct {
	entry *logging.Entry
}

// Emit logs a structured event of the given kind with extra fields.
func (e *Entry) Emit(kind Kind, fields logging.Fields) {
	if e == nil || e.entry == nil {
		return
	}
	if fields == nil {
		fields = logging.Fields{}
	}
	fields["event"] = string(kind)
	e.entry.WithFields(fields).Debug(kind)
}
