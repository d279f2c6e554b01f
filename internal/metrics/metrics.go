// Package metrics is the overlay's ambient observability surface: it
// tracks tick cadence, packet traffic by type, and graph/reunion events,
// and optionally exposes them over HTTP. No protocol behavior depends on
// it — it is never mentioned on the wire.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is a peer's set of Prometheus collectors.
type Collector struct {
	reg *prometheus.Registry

	TickDuration   prometheus.Histogram
	PacketsIn      *prometheus.CounterVec
	PacketsOut     *prometheus.CounterVec
	PacketsDropped *prometheus.CounterVec
	GraphSize      prometheus.Gauge
	ReunionEvicted prometheus.Counter
}

// New registers a fresh collector set.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "canopy_tick_duration_seconds",
			Help:    "Duration of one peer event-loop tick.",
			Buckets: prometheus.DefBuckets,
		}),
		PacketsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_packets_in_total",
			Help: "Inbound packets processed, by type.",
		}, []string{"type"}),
		PacketsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_packets_out_total",
			Help: "Outbound packets enqueued, by type.",
		}, []string{"type"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_packets_dropped_total",
			Help: "Packets dropped, by reason.",
		}, []string{"reason"}),
		GraphSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_graph_size",
			Help: "Number of nodes currently admitted to the tree (root only).",
		}),
		ReunionEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canopy_reunion_evicted_total",
			Help: "Nodes removed by the root's liveness sweep (root only).",
		}),
	}

	reg.MustRegister(c.TickDuration, c.PacketsIn, c.PacketsOut, c.PacketsDropped, c.GraphSize, c.ReunionEvicted)
	return c
}

// Serve starts an HTTP server exposing /metrics and /healthz at addr. It
// runs until ctx is canceled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
