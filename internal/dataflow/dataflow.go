// Package dataflow holds the per-dataflow bookkeeping the worker scheduling
// loop drives: an operator tree, whatever opaque resources the dataflow's
// builder attached, the channel_ids it owns, and its logging context.
package dataflow

import (
	"github.com/flowlattice/runtime/internal/channel"
	"github.com/flowlattice/runtime/internal/operator"
	"github.com/flowlattice/runtime/internal/pathmap"
	"github.com/flowlattice/runtime/internal/telemetry"
)

// Dataflow is one top-level computation registered with a worker. Root is
// the dataflow's top operator; Resources are opaque values the builder
// wants kept alive alongside it (closed user state, buffers, etc.) —
// dropped only after Root, per SPEC §3's lifecycle invariant.
type Dataflow struct {
	Index     int
	Root      operator.Operator
	Resources []any
	ChannelIDs []uint64

	log *telemetry.Entry
}

// New registers a dataflow under index with its root operator, owned
// channel ids, and logging entry.
func New(index int, root operator.Operator, channelIDs []uint64, log *telemetry.Entry) *Dataflow {
	return &Dataflow{
		Index:      index,
		Root:       root,
		ChannelIDs: append([]uint64(nil), channelIDs...),
		log:        log,
	}
}

// Step runs one Schedule() call on the root operator, returning whether the
// dataflow is now complete.
func (d *Dataflow) Step() (complete bool) {
	d.log.Emit(telemetry.ScheduleStart, nil)
	incomplete := d.Root.Schedule()
	d.log.Emit(telemetry.ScheduleStop, nil)
	return !incomplete
}

// Teardown drops the operator tree before the attached resources (SPEC §3:
// "operator first, resources second") and unregisters every channel_id this
// dataflow owned from the worker's address map and registry.
func (d *Dataflow) Teardown(paths *pathmap.Map, registry *channel.Registry) {
	d.Root = nil
	d.Resources = nil
	for _, id := range d.ChannelIDs {
		paths.Unbind(id)
		registry.Remove(id)
	}
	d.log.Emit(telemetry.ShutdownEvent, nil)
}
