package worker

import (
	"time"

	"github.com/flowlattice/runtime/internal/errs"
)

// Guard runs a worker's step loop on its own goroutine and reports the
// outcome on Join: nil on graceful completion, a *errs.TransportError
// surfaced by StepWhile, or an *errs.OperatorPanic if
// the loop panicked (SPEC §4.6: "A panic in a worker thread is captured by
// its join handle").
type Guard struct {
	done chan struct{}
	err  error
}

// Run starts w's step loop under pred and returns immediately with a
// handle to join on.
func Run(w *Worker, pred func() bool) *Guard {
	g := &Guard{done: make(chan struct{})}
	go func() {
		defer close(g.done)
		defer func() {
			if r := recover(); r != nil {
				g.err = &errs.OperatorPanic{WorkerIndex: w.Index, Value: r}
			}
		}()
		g.err = w.StepWhile(pred)
	}()
	return g
}

// Join blocks until the worker's loop exits and returns its outcome.
func (g *Guard) Join() error {
	<-g.done
	return g.err
}

// RunAll starts a Guard for every worker and returns a function that joins
// them all, collecting every non-nil error (SPEC §7: "a vector of per-worker
// Result<T, String>").
func RunAll(workers []*Worker, pred func() bool) func() []error {
	guards := make([]*Guard, len(workers))
	for i, w := range workers {
		guards[i] = Run(w, pred)
	}
	return func() []error {
		var errsOut []error
		for _, g := range guards {
			if err := g.Join(); err != nil {
				errsOut = append(errsOut, err)
			}
		}
		return errsOut
	}
}

// RunAllParking is RunAll but drives each worker with StepWhileParking
// instead of StepWhile, so idle workers park instead of busy-polling.
func RunAllParking(workers []*Worker, pred func() bool, idleTimeout time.Duration) func() []error {
	guards := make([]*Guard, len(workers))
	for i, w := range workers {
		w := w
		g := &Guard{done: make(chan struct{})}
		go func() {
			defer close(g.done)
			defer func() {
				if r := recover(); r != nil {
					g.err = &errs.OperatorPanic{WorkerIndex: w.Index, Value: r}
				}
			}()
			g.err = w.StepWhileParking(pred, idleTimeout)
		}()
		guards[i] = g
	}
	return func() []error {
		var errsOut []error
		for _, g := range guards {
			if err := g.Join(); err != nil {
				errsOut = append(errsOut, err)
			}
		}
		return errsOut
	}
}
