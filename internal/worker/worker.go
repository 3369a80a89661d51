// Package worker implements the scheduling loop described in SPEC §4.3: it
// drives a channel.Allocator through rescale/receive/release each step,
// turns drained events into activations, and schedules whichever top-level
// dataflows the activation tracker reports runnable.
package worker

import (
	"time"

	"github.com/flowlattice/runtime/internal/activation"
	"github.com/flowlattice/runtime/internal/channel"
	"github.com/flowlattice/runtime/internal/dataflow"
	"github.com/flowlattice/runtime/internal/metrics"
	"github.com/flowlattice/runtime/internal/pathmap"
	"github.com/flowlattice/runtime/internal/telemetry"
)

// errorer is implemented by allocator flavors that can observe an
// asynchronous transport failure (currently only the network flavor, via
// its receive threads).
type errorer interface {
	Err() error
}

// Worker owns one allocator, its activation tracker, and the dataflows
// currently registered on it. It is driven entirely by its own goroutine;
// nothing else may call its allocator or mutate its dataflow set.
type Worker struct {
	Index int

	alloc     channel.Allocator
	tracker   *activation.Tracker
	paths     *pathmap.Map
	dataflows map[int]*dataflow.Dataflow
	log       *telemetry.Entry
	onNewPeer func(myIndex int, peerAddr string)
}

// New returns a worker driving alloc. onNewPeer is invoked once per peer
// this worker's rescale() admits, with this worker's index and the new
// peer's process address; only the network flavor ever admits peers, so
// the thread and process flavors pass nil. The donor's bootstrap server is
// not started from here: it is the long-lived listener behind
// Result.BootstrapListen.
func New(alloc channel.Allocator, paths *pathmap.Map, log *telemetry.Entry, onNewPeer func(myIndex int, peerAddr string)) *Worker {
	return &Worker{
		Index:     alloc.Index(),
		alloc:     alloc,
		tracker:   activation.New(metrics.WorkerLabel(alloc.Index())),
		paths:     paths,
		dataflows: make(map[int]*dataflow.Dataflow),
		log:       log,
		onNewPeer: onNewPeer,
	}
}

// Register adds df to this worker's set of scheduled dataflows.
func (w *Worker) Register(df *dataflow.Dataflow) {
	w.dataflows[df.Index] = df
}

// Allocator exposes the underlying allocator, e.g. so a caller can call
// Allocate[T]/Pipeline[T] against its *channel.Base.
func (w *Worker) Allocator() channel.Allocator { return w.alloc }

// Len reports how many dataflows are still registered.
func (w *Worker) Len() int { return len(w.dataflows) }

// Step runs one iteration of the step loop without parking (SPEC:
// step() == step_or_park(timeout=0)).
func (w *Worker) Step() error { return w.stepOrPark(0) }

// StepOrPark runs one iteration, parking up to timeout if idle. A negative
// timeout parks indefinitely (SPEC's step_or_park(None)).
func (w *Worker) StepOrPark(timeout time.Duration) error { return w.stepOrPark(timeout) }

// StepWhile calls Step until pred returns false or a step reports an error.
func (w *Worker) StepWhile(pred func() bool) error {
	for pred() {
		if err := w.Step(); err != nil {
			return err
		}
	}
	return nil
}

// StepWhileParking is StepWhile but parks up to idleTimeout between steps
// instead of busy-polling — the shape a long-running server process drives
// its workers with, as opposed to StepWhile's drain-to-idle use in tests.
func (w *Worker) StepWhileParking(pred func() bool, idleTimeout time.Duration) error {
	for pred() {
		if err := w.StepOrPark(idleTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) stepOrPark(timeout time.Duration) error {
	w.alloc.Rescale(w.onNewPeer)
	w.alloc.Receive()

	if e, ok := w.alloc.(errorer); ok {
		if err := e.Err(); err != nil {
			return err
		}
	}

	w.alloc.Events().Drain(func(id uint64, _ channel.Event) {
		if path, ok := w.paths.Lookup(id); ok {
			w.tracker.Activate(path)
		}
	})

	runnable := w.tracker.Advance()

	if !runnable && len(w.dataflows) > 0 && timeout != 0 {
		w.log.Emit(telemetry.Park, nil)
		w.alloc.AwaitEvents(timeout)
		w.log.Emit(telemetry.Unpark, nil)
	} else {
		active := make(map[int]struct{})
		w.tracker.ForExtensions(nil, func(p activation.Path) {
			if len(p) > 0 {
				active[int(p[0])] = struct{}{}
			}
		})
		for idx := range active {
			df, ok := w.dataflows[idx]
			if !ok {
				continue
			}
			if df.Step() {
				df.Teardown(w.paths, w.alloc.Registry())
				delete(w.dataflows, idx)
			} else {
				// Still incomplete: keep it runnable on the next step.
				w.tracker.Activate(activation.Path{uint64(idx)})
			}
		}
	}

	w.alloc.Release()
	return nil
}
