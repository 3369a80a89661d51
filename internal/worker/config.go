package worker

import (
	"fmt"

	"github.com/flowlattice/runtime/internal/channel"
	"github.com/flowlattice/runtime/internal/errs"
	"github.com/flowlattice/runtime/internal/pathmap"
	"github.com/flowlattice/runtime/internal/progress"
	"github.com/flowlattice/runtime/internal/rescale"
	"github.com/flowlattice/runtime/internal/telemetry"
	logging "github.com/sirupsen/logrus"
)

// Kind selects which of the three allocator flavors Initialize builds
// (SPEC §6 "Configuration").
type Kind int

const (
	KindThread Kind = iota
	KindProcess
	KindCluster
)

// JoinConfig supplies everything the joiner-side bootstrap needs. Its hooks
// are only consulted when Configuration.Join is non-nil; its Broadcasters
// also back this process's donor-side bootstrap listener either way.
type JoinConfig struct {
	rescale.BootstrapConfig
}

// Configuration mirrors SPEC §6's enumerated variants in one struct, with
// Kind selecting which fields apply.
type Configuration struct {
	Kind Kind

	// Thread has no further fields.

	// Process
	Threads int

	// Cluster
	Process      int
	Addresses    []string
	QueueCap     int
	MergeCap     int
	BootstrapAddr string
	Report       bool
	Join         *int // donor worker global index, nil when not joining
	JoinConfig   JoinConfig

	Log *logging.Logger
}

// Result is everything Initialize hands back: the built workers and
// (Cluster only) a function that starts the listener serving this process
// as a potential donor. Starting and joining the workers is left to
// RunAll/RunAllParking.
type Result struct {
	Workers        []*Worker
	BootstrapListen func() error
}

// Initialize builds the allocators and workers for cfg, performing the
// joiner-side bootstrap synchronously before returning if cfg.Join is set
// (SPEC §4.5: the joiner "performs normal initialize with a
// join=Some(donor_index) flag").
func Initialize(cfg Configuration, paths *pathmap.Map, events *telemetry.Registry, onElectedDonor func(myIndex int, peerAddr string)) (*Result, error) {
	switch cfg.Kind {
	case KindThread:
		return initThread(cfg, paths, events)
	case KindProcess:
		return initProcess(cfg, paths, events)
	case KindCluster:
		return initCluster(cfg, paths, events, onElectedDonor)
	default:
		return nil, errs.NewConfigError("unknown configuration kind %d", cfg.Kind)
	}
}

func initThread(cfg Configuration, paths *pathmap.Map, events *telemetry.Registry) (*Result, error) {
	alloc := channel.NewThreadAllocator(cfg.QueueCap)
	w := New(alloc, paths, events.For(alloc.Index()), nil)
	return &Result{Workers: []*Worker{w}}, nil
}

func initProcess(cfg Configuration, paths *pathmap.Map, events *telemetry.Registry) (*Result, error) {
	if cfg.Threads <= 0 {
		return nil, errs.NewConfigError("process configuration needs at least one thread")
	}
	allocs := channel.NewProcessGroup(cfg.Threads, cfg.QueueCap)
	workers := make([]*Worker, len(allocs))
	for i, a := range allocs {
		workers[i] = New(a, paths, events.For(a.Index()), nil)
	}
	return &Result{Workers: workers}, nil
}

func initCluster(cfg Configuration, paths *pathmap.Map, events *telemetry.Registry, onElectedDonor func(int, string)) (*Result, error) {
	if cfg.Process < 0 || cfg.Process >= len(cfg.Addresses) {
		return nil, errs.NewConfigError("process index %d out of range for %d addresses", cfg.Process, len(cfg.Addresses))
	}
	processThreads := make([]int, len(cfg.Addresses))
	for i := range processThreads {
		if i == cfg.Process {
			processThreads[i] = cfg.Threads
		} else {
			processThreads[i] = cfg.Threads // uniform unless a rescale later admits a heterogeneous joiner
		}
	}

	log := cfg.Log
	if log == nil {
		log = logging.New()
	}
	allocs, err := channel.NewNetworkCluster(cfg.Process, processThreads, cfg.Addresses, cfg.QueueCap, cfg.MergeCap, log.WithField("process", cfg.Process))
	if err != nil {
		return nil, err
	}

	workers := make([]*Worker, len(allocs))
	for i, a := range allocs {
		workers[i] = New(a, paths, events.For(a.Index()), onElectedDonor)
	}

	bootstrapAddr := cfg.BootstrapAddr
	if bootstrapAddr == "" {
		bootstrapAddr = "localhost:9000"
	}

	result := &Result{Workers: workers}
	result.BootstrapListen = func() error {
		_, err := rescale.ListenAndServe(bootstrapAddr, func() map[uint64]*progress.Broadcaster {
			return cfg.JoinConfig.Broadcasters
		}, log.WithField("role", "bootstrap-server"))
		return err
	}

	if cfg.Join != nil {
		jc := cfg.JoinConfig.BootstrapConfig
		jc.DonorAddr = bootstrapAddr
		if jc.KnownSenders == nil {
			jc.KnownSenders = func(uint64) []uint64 { return nil }
		}
		if jc.SnapshotSeqs == nil {
			jc.SnapshotSeqs = func(uint64, []byte) map[uint64]uint64 { return nil }
		}
		if jc.LiveLowerBound == nil {
			jc.LiveLowerBound = func(uint64, uint64) (uint64, bool) { return 0, false }
		}
		if jc.Apply == nil {
			jc.Apply = func(uint64, progress.Update) {}
		}
		if err := rescale.Bootstrap(jc); err != nil {
			return nil, fmt.Errorf("joining cluster: %w", err)
		}
	}

	return result, nil
}
