// Package metrics registers the Prometheus series every runtime component
// updates inline at its mutation site, grounded on the teacher's
// controller/api/destination/watcher/prometheus.go package-level
// promauto.New*Vec-at-init pattern. pkg/admin serves these on /metrics; this
// package owns nothing about HTTP, only the series themselves.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Channels counts live registry entries per worker.
	Channels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowmesh_channels",
		Help: "Number of channels currently registered on a worker.",
	}, []string{"worker"})

	// EventQueueDepth tracks the shared per-worker notification queue's
	// pending-entry count.
	EventQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowmesh_event_queue_depth",
		Help: "Number of undelivered (channel_id, event) entries queued for a worker.",
	}, []string{"worker"})

	// MergeQueueDepth tracks a process's outbound per-destination-peer merge
	// queue occupancy.
	MergeQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowmesh_merge_queue_depth",
		Help: "Number of frames buffered for a remote destination worker.",
	}, []string{"peer"})

	// BootstrapRangesServed counts RANGE_REQ messages a donor has answered.
	BootstrapRangesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowmesh_bootstrap_ranges_served_total",
		Help: "Number of RANGE_REQ messages answered by this process acting as a bootstrap donor.",
	})

	// BootstrapRangesRequested counts RANGE_REQ messages a joiner has sent.
	BootstrapRangesRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowmesh_bootstrap_ranges_requested_total",
		Help: "Number of RANGE_REQ messages sent by this process while joining a cluster.",
	})

	// ActivationSetSize tracks the size of a worker's current activation set
	// after each Advance.
	ActivationSetSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowmesh_activation_set_size",
		Help: "Number of runnable activations in a worker's current set.",
	}, []string{"worker"})
)

// WorkerLabel formats a worker index as the "worker" label value shared by
// the per-worker gauges above.
func WorkerLabel(index int) string { return strconv.Itoa(index) }
