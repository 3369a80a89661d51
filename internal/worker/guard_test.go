package worker

import (
	"sync/atomic"
	"testing"

	"github.com/flowlattice/runtime/internal/channel"
	"github.com/flowlattice/runtime/internal/dataflow"
	"github.com/flowlattice/runtime/internal/errs"
	"github.com/flowlattice/runtime/internal/pathmap"
	"github.com/flowlattice/runtime/internal/telemetry"
)

type panickingOperator struct{ path []uint64 }

func (o *panickingOperator) Path() []uint64 { return o.path }
func (o *panickingOperator) Name() string   { return "panicking" }
func (o *panickingOperator) Schedule() bool { panic("operator blew up") }
func (o *panickingOperator) GetInternalSummary() any { return nil }
func (o *panickingOperator) SetExternalSummary(any)  {}

// TestGuardRecoversOperatorPanic checks that a panicking Schedule() call is
// captured on the worker's join handle rather than crashing the process.
func TestGuardRecoversOperatorPanic(t *testing.T) {
	alloc := channel.NewThreadAllocator(16)
	paths := pathmap.New()
	events := telemetry.NewRegistry(nil)
	w := New(alloc, paths, events.For(0), nil)

	pusher, _ := channel.Pipeline[int](alloc.Base, 1)
	paths.Bind(1, []uint64{0})
	df := dataflow.New(0, &panickingOperator{path: []uint64{0}}, []uint64{1}, events.For(0))
	w.Register(df)
	pusher.Push(1)

	g := Run(w, func() bool { return true })
	err := g.Join()
	if err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
	var opPanic *errs.OperatorPanic
	if !asOperatorPanic(err, &opPanic) {
		t.Fatalf("expected *errs.OperatorPanic, got %T: %v", err, err)
	}
	if opPanic.WorkerIndex != w.Index {
		t.Fatalf("expected panic to report worker index %d, got %d", w.Index, opPanic.WorkerIndex)
	}
}

func asOperatorPanic(err error, target **errs.OperatorPanic) bool {
	p, ok := err.(*errs.OperatorPanic)
	if !ok {
		return false
	}
	*target = p
	return true
}

// TestRunAllJoinsEveryWorker runs several idle workers and checks RunAll
// joins all of them cleanly once the shared predicate goes false.
func TestRunAllJoinsEveryWorker(t *testing.T) {
	allocs := channel.NewProcessGroup(3, 16)
	workers := make([]*Worker, len(allocs))
	paths := pathmap.New()
	events := telemetry.NewRegistry(nil)
	for i, a := range allocs {
		workers[i] = New(a, paths, events.For(a.Index()), nil)
	}

	var steps atomic.Int64
	join := RunAll(workers, func() bool {
		return steps.Add(1) <= 3*int64(len(workers))
	})
	errsOut := join()
	if len(errsOut) != 0 {
		t.Fatalf("expected no errors from idle workers, got %v", errsOut)
	}
}
