// File: adapters/metrics/metrics.go
// Package metrics is the concrete MetricsSink the engine's admin
// surface serves: a Prometheus registry exposed over its own loopback
// HTTP listener via gorilla/mux, never the reactor's epoll set, so
// scraping cannot perturb reactor invariants.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/reactorhost/control"
)

// Sink is a MetricsSink backed by a private Prometheus registry:
// counters/gauges only, no decode/encode surface.
type Sink struct {
	reg *prometheus.Registry

	connectionsTotal prometheus.Counter
	connectionsOpen  prometheus.Gauge
	bytesIn          prometheus.Counter
	bytesOut         prometheus.Counter
	handlerErrors    prometheus.Counter
}

// NewSink constructs a Sink with its own private Registry (never the
// default global one, so multiple Runtimes in one process — e.g. in
// tests — never collide).
func NewSink() *Sink {
	reg := prometheus.NewRegistry()
	s := &Sink{
		reg: reg,
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorhost_connections_total",
			Help: "Total connections accepted or connected.",
		}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reactorhost_connections_open",
			Help: "Currently open connections.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorhost_bytes_in_total",
			Help: "Total bytes read from sockets.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorhost_bytes_out_total",
			Help: "Total bytes written to sockets.",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorhost_handler_errors_total",
			Help: "Total handler exceptions caught at the worker loop.",
		}),
	}
	reg.MustRegister(s.connectionsTotal, s.connectionsOpen, s.bytesIn, s.bytesOut, s.handlerErrors)
	return s
}

func (s *Sink) ConnectionOpened()        { s.connectionsTotal.Inc(); s.connectionsOpen.Inc() }
func (s *Sink) ConnectionClosed()        { s.connectionsOpen.Dec() }
func (s *Sink) BytesRead(n int)          { s.bytesIn.Add(float64(n)) }
func (s *Sink) BytesWritten(n int)       { s.bytesOut.Add(float64(n)) }
func (s *Sink) HandlerError()            { s.handlerErrors.Inc() }

// AdminServer hosts the Prometheus scrape endpoint and any registered
// control.Control debug probes behind one loopback-only HTTP server,
// entirely separate from the reactor's own epoll-driven listeners.
type AdminServer struct {
	srv *http.Server
}

// NewAdminServer builds the admin mux: GET /metrics for Prometheus,
// GET /debug for a JSON dump of probes registered on probes.
func NewAdminServer(addr string, sink *Sink, probes control.Control) *AdminServer {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(sink.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/debug", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(probes.DumpState())
	}).Methods(http.MethodGet)

	return &AdminServer{srv: &http.Server{Addr: addr, Handler: r}}
}

// Serve starts the admin listener; blocks until the listener errors
// or Shutdown is called (standard net/http server semantics — this
// surface is deliberately independent of the reactor's own Run loop).
func (a *AdminServer) Serve(ln net.Listener) error {
	return a.srv.Serve(ln)
}

// ListenAndServe is a convenience wrapper binding addr itself.
func (a *AdminServer) ListenAndServe() error {
	return a.srv.ListenAndServe()
}

// Shutdown drains in-flight admin requests within timeout.
// Idempotent.
func (a *AdminServer) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.srv.Shutdown(ctx)
}
