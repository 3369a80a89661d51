package worker

import (
	"testing"

	"github.com/flowlattice/runtime/internal/activation"
	"github.com/flowlattice/runtime/internal/channel"
	"github.com/flowlattice/runtime/internal/dataflow"
	"github.com/flowlattice/runtime/internal/pathmap"
	"github.com/flowlattice/runtime/internal/telemetry"
)

type countingOperator struct {
	path      []uint64
	remaining int
	scheduled int
}

func (o *countingOperator) Path() []uint64 { return o.path }
func (o *countingOperator) Name() string   { return "counting" }
func (o *countingOperator) Schedule() bool {
	o.scheduled++
	if o.remaining == 0 {
		return false
	}
	o.remaining--
	return o.remaining > 0
}
func (o *countingOperator) GetInternalSummary() any  { return nil }
func (o *countingOperator) SetExternalSummary(any)   {}

// TestStepActivatesAndSchedulesOnPush drives a single-worker thread
// allocator end to end: pushing into a pipeline channel should activate the
// operator bound to that channel's path, which the step loop then runs.
func TestStepActivatesAndSchedulesOnPush(t *testing.T) {
	alloc := channel.NewThreadAllocator(16)
	paths := pathmap.New()
	events := telemetry.NewRegistry(nil)
	w := New(alloc, paths, events.For(0), nil)

	pusher, _ := channel.Pipeline[int](alloc.Base, 1)
	paths.Bind(1, activation.Path{0})

	op := &countingOperator{path: []uint64{0}, remaining: 0}
	df := dataflow.New(0, op, []uint64{1}, events.For(0))
	w.Register(df)

	pusher.Push(42)

	if err := w.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if op.scheduled != 1 {
		t.Fatalf("expected operator to be scheduled once, got %d", op.scheduled)
	}
	if w.Len() != 0 {
		t.Fatalf("expected completed dataflow to be torn down, got %d remaining", w.Len())
	}
	if _, ok := paths.Lookup(1); ok {
		t.Fatal("expected channel 1 to be unbound after dataflow teardown")
	}
}

// TestStepWithoutActivationDoesNotSchedule checks that a dataflow with no
// pending activation is left alone.
func TestStepWithoutActivationDoesNotSchedule(t *testing.T) {
	alloc := channel.NewThreadAllocator(16)
	paths := pathmap.New()
	events := telemetry.NewRegistry(nil)
	w := New(alloc, paths, events.For(0), nil)

	op := &countingOperator{path: []uint64{0}, remaining: 5}
	df := dataflow.New(0, op, nil, events.For(0))
	w.Register(df)

	if err := w.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if op.scheduled != 0 {
		t.Fatalf("expected operator to not be scheduled without an activation, got %d", op.scheduled)
	}
	if w.Len() != 1 {
		t.Fatalf("expected dataflow to remain registered, got %d", w.Len())
	}
}

func TestStepWhileDrainsUntilPredicateFalse(t *testing.T) {
	alloc := channel.NewThreadAllocator(16)
	paths := pathmap.New()
	events := telemetry.NewRegistry(nil)
	w := New(alloc, paths, events.For(0), nil)

	pusher, _ := channel.Pipeline[int](alloc.Base, 1)
	paths.Bind(1, activation.Path{0})
	op := &countingOperator{path: []uint64{0}, remaining: 2}
	df := dataflow.New(0, op, []uint64{1}, events.For(0))
	w.Register(df)
	pusher.Push(1)

	steps := 0
	err := w.StepWhile(func() bool {
		steps++
		return steps <= 5 && w.Len() > 0
	})
	if err != nil {
		t.Fatalf("StepWhile: %v", err)
	}
	if w.Len() != 0 {
		t.Fatalf("expected dataflow to complete within 5 steps, %d remaining", w.Len())
	}
}
