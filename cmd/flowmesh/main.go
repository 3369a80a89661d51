// Command flowmesh starts one process of a flowmesh worker cluster: a
// single thread, a group of threads sharing a process, or a process taking
// part in (and optionally joining) a networked cluster, per SPEC §6's CLI
// surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/imdario/mergo"
	logging "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowlattice/runtime/internal/config"
	"github.com/flowlattice/runtime/internal/pathmap"
	"github.com/flowlattice/runtime/internal/telemetry"
	"github.com/flowlattice/runtime/internal/worker"
	"github.com/flowlattice/runtime/pkg/admin"
	"github.com/flowlattice/runtime/pkg/version"
)

const idleParkTimeout = 250 * time.Millisecond

// clusterDefaults is merged into a Cluster Configuration for any field the
// caller left at its zero value (github.com/imdario/mergo, the same
// leave-non-empty-fields-alone merge the teacher uses to layer chart
// defaults under user-supplied Helm values).
var clusterDefaults = worker.Configuration{
	QueueCap:      1024,
	MergeCap:      256,
	BootstrapAddr: "localhost:9000",
}

type cliArgs struct {
	threads      int
	processIdx   int
	numProcesses int
	hostfilePath string
	joinWorker   int
	verbose      bool
	adminAddr    string
	logLevel     string
	printVersion bool
}

func main() {
	var a cliArgs

	root := &cobra.Command{
		Use:           "flowmesh",
		Short:         "run one process of a flowmesh worker cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.printVersion {
				fmt.Println(version.Version)
				return nil
			}
			var join *int
			if cmd.Flags().Changed("join") {
				join = &a.joinWorker
			}
			return run(a, join)
		},
	}

	fs := root.Flags()
	fs.Bool("help", false, "help for flowmesh") // --help with no shorthand, so cobra leaves -h free for --hostfile below
	fs.IntVarP(&a.threads, "threads", "w", 1, "threads per process")
	fs.IntVarP(&a.processIdx, "process", "p", 0, "this process's index")
	fs.IntVarP(&a.numProcesses, "num-processes", "n", 1, "number of processes")
	fs.StringVarP(&a.hostfilePath, "hostfile", "h", "", "hostfile, one host:port per line (default localhost:2101+i)")
	fs.IntVarP(&a.joinWorker, "join", "j", 0, "join a live cluster with donor = worker NUM")
	fs.BoolVarP(&a.verbose, "verbose", "r", false, "verbose connection progress")
	fs.StringVar(&a.adminAddr, "admin-addr", "localhost:9990", "admin server address (metrics, ping, ready)")
	fs.StringVar(&a.logLevel, "log-level", logging.InfoLevel.String(), "log level")
	fs.BoolVar(&a.printVersion, "version", false, "print version and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("flowmesh: %v", err))
		os.Exit(1)
	}
}

func run(a cliArgs, join *int) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log-level %q: %w", a.logLevel, err)
	}
	log := logging.New()
	log.SetLevel(level)

	paths := pathmap.New()
	events := telemetry.NewRegistry(log)

	var result *worker.Result

	switch {
	case a.numProcesses <= 1 && join == nil && a.threads <= 1:
		result, err = worker.Initialize(worker.Configuration{Kind: worker.KindThread}, paths, events, nil)
	case a.numProcesses <= 1 && join == nil:
		result, err = worker.Initialize(worker.Configuration{Kind: worker.KindProcess, Threads: a.threads}, paths, events, nil)
	default:
		result, err = initCluster(a, join, paths, events, log)
	}
	if err != nil {
		return err
	}

	ready := false
	status := func() []admin.WorkerStatus {
		statuses := make([]admin.WorkerStatus, len(result.Workers))
		for i, w := range result.Workers {
			statuses[i] = admin.WorkerStatus{
				Index:     w.Index,
				Peers:     w.Allocator().Peers(),
				Dataflows: w.Len(),
			}
		}
		return statuses
	}
	srv := admin.NewServer(a.adminAddr, false, func() bool { return ready }, status)
	go func() {
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.WithError(serveErr).Warn("admin server stopped")
		}
	}()

	if result.BootstrapListen != nil {
		if lerr := result.BootstrapListen(); lerr != nil {
			return lerr
		}
	}
	ready = true

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var shuttingDown atomic.Bool
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		shuttingDown.Store(true)
	}()

	joinAll := worker.RunAllParking(result.Workers, func() bool { return !shuttingDown.Load() }, idleParkTimeout)
	workerErrs := joinAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("admin server shutdown")
	}

	for _, werr := range workerErrs {
		if werr != nil {
			log.WithError(werr).Error("worker exited with error")
		}
	}
	return nil
}

func initCluster(a cliArgs, join *int, paths *pathmap.Map, events *telemetry.Registry, log *logging.Logger) (*worker.Result, error) {
	addrs, err := config.ResolveAddresses(a.hostfilePath, a.numProcesses)
	if err != nil {
		return nil, err
	}

	var sp *spinner.Spinner
	if a.verbose {
		sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		sp.Suffix = " connecting to cluster peers..."
		sp.Start()
		defer sp.Stop()
	}

	bootstrapAddr := os.Getenv("BOOTSTRAP_ADDR")

	cfg := worker.Configuration{
		Kind:          worker.KindCluster,
		Threads:       a.threads,
		Process:       a.processIdx,
		Addresses:     addrs,
		BootstrapAddr: bootstrapAddr,
		Report:        a.verbose,
		Join:          join,
		Log:           log,
	}
	// Fill in whatever the caller left at its zero value — queue sizing and
	// the bootstrap address have sane cluster-wide defaults that -w/-p/-n
	// alone shouldn't need to spell out.
	if err := mergo.Merge(&cfg, clusterDefaults); err != nil {
		return nil, fmt.Errorf("applying cluster defaults: %w", err)
	}

	result, err := worker.Initialize(cfg, paths, events, func(myIndex int, peerAddr string) {
		log.WithField("peer", peerAddr).Info(color.GreenString("admitted new peer"))
	})
	if a.verbose && err == nil {
		fmt.Println(color.GreenString("cluster ready: process %d of %d", a.processIdx, len(addrs)))
	}
	return result, err
}
