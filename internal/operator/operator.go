// Package operator defines the interface the scheduler drives and the
// per-scope progress handles a scope builder exposes, without knowing
// anything about a specific operator's logic or timestamp lattice (both are
// external collaborators per SPEC §1).
package operator

import "github.com/flowlattice/runtime/internal/progress"

// Operator is what the worker scheduling loop consumes: a name and address
// for logging/activation, a single step of work, and the progress-summary
// exchange used to build the scope's internal timestamp-lattice traversal.
// GetInternalSummary/SetExternalSummary carry opaque lattice-specific
// values — the core only plumbs them through, it never inspects them.
type Operator interface {
	// Path is this operator's address: child indices from the root
	// dataflow down to it.
	Path() []uint64
	// Name is a human-readable label used in logs and diagnostics.
	Name() string
	// Schedule runs one unit of work. It returns true while the operator
	// still has pending work (SPEC's "incomplete").
	Schedule() (incomplete bool)
	// GetInternalSummary returns this operator's path-summary contribution,
	// opaque to the core.
	GetInternalSummary() any
	// SetExternalSummary installs the scope-level summary computed from
	// every sibling's internal summary.
	SetExternalSummary(any)
}

// ClientMap and ServerMap key a scope's progress-broadcaster handles by
// scope id, as returned by a scope builder's ProgcasterHandles.
type ClientMap map[uint64]*progress.Broadcaster
type ServerMap map[uint64]*progress.Broadcaster

// ScopeBuilder is implemented by the top-level builder of each nested
// scope: it is asked once, at dataflow construction time, for the
// broadcaster handles that back that scope's progress tracking.
type ScopeBuilder interface {
	ProgcasterHandles() (ClientMap, ServerMap)
}
