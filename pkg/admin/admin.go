// Package admin serves the process-local HTTP surface every flowmesh
// worker process exposes alongside its data-plane sockets: Prometheus
// metrics, a liveness ping, a readiness probe backed by the caller's own
// notion of "ready", and a /workers endpoint surfacing each local worker's
// current scheduling state for operators inspecting a running cluster.
package admin

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerStatus is one local worker's point-in-time scheduling state.
type WorkerStatus struct {
	Index     int `json:"index"`
	Peers     int `json:"peers"`
	Dataflows int `json:"dataflows"`
}

// NewServer returns an initialized http.Server listening on addr. ready is
// polled on every /ready request; a nil ready always reports ready. status,
// if non-nil, backs /workers with one entry per local worker; a nil status
// leaves /workers unregistered (404).
func NewServer(addr string, enablePprof bool, ready func() bool, status func() []WorkerStatus) *http.Server {
	if ready == nil {
		ready = func() bool { return true }
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ping", servePing)
	mux.HandleFunc("/ready", serveReady(ready))
	if status != nil {
		mux.HandleFunc("/workers", serveWorkers(status))
	}
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func servePing(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("pong\n"))
}

func serveReady(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			http.Error(w, "not ready\n", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n"))
	}
}

func serveWorkers(status func() []WorkerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
