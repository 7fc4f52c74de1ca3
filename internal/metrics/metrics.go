// Package metrics serves a read-only, Prometheus-text-format view of
// the service table over HTTP, on a listener separate from and
// independent of the control socket. It never mutates anything: the
// supervisor publishes a snapshot after every event-loop iteration that
// changes state, and this package only ever reads the latest one.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"sima/internal/service"
)

// Registry holds the most recently published service snapshot plus a
// handful of monotonic counters, and serves them as Prometheus-format
// text.
type Registry struct {
	mu           sync.RWMutex
	snapshot     []service.Info
	totalSpawns  int64
	totalRestart int64
}

// NewRegistry returns an empty Registry; call Publish after each
// supervisor state change to keep it current.
func NewRegistry() *Registry {
	return &Registry{}
}

// Publish replaces the snapshot metrics are served from. Safe to call
// from the supervisor's own goroutine; readers never block it.
func (r *Registry) Publish(snapshot []service.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = snapshot
}

// IncSpawns counts one successful or attempted service spawn.
func (r *Registry) IncSpawns() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalSpawns++
}

// IncRestarts counts one deferred restart taking effect.
func (r *Registry) IncRestarts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalRestart++
}

// Gather renders the current snapshot and counters as Prometheus
// exposition text.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	running := 0
	for _, s := range r.snapshot {
		if s.Running {
			running++
		}
	}

	out := "# HELP sima_service_up Whether the service's primary process is currently running.\n"
	out += "# TYPE sima_service_up gauge\n"
	for _, s := range r.snapshot {
		up := 0
		if s.Running {
			up = 1
		}
		out += fmt.Sprintf("sima_service_up{name=%q} %d\n", s.Name, up)
	}

	out += "# HELP sima_service_pid Process identifier of the service's primary process, or 0 if not running.\n"
	out += "# TYPE sima_service_pid gauge\n"
	for _, s := range r.snapshot {
		out += fmt.Sprintf("sima_service_pid{name=%q} %d\n", s.Name, s.PID)
	}

	out += "# HELP sima_services_running Count of services currently running.\n"
	out += "# TYPE sima_services_running gauge\n"
	out += fmt.Sprintf("sima_services_running %d\n", running)

	out += "# HELP sima_spawns_total Count of service spawn attempts since boot.\n"
	out += "# TYPE sima_spawns_total counter\n"
	out += fmt.Sprintf("sima_spawns_total %d\n", r.totalSpawns)

	out += "# HELP sima_restarts_total Count of deferred restarts that have taken effect since boot.\n"
	out += "# TYPE sima_restarts_total counter\n"
	out += fmt.Sprintf("sima_restarts_total %d\n", r.totalRestart)

	return out
}

// Server is an optional HTTP listener exposing Registry.Gather at
// /metrics. It is off by default; cmd/sima only starts one when asked.
type Server struct {
	registry *Registry
	server   *http.Server
}

// NewServer builds a metrics Server bound to addr (e.g. "127.0.0.1:9110").
func NewServer(addr string, registry *Registry) *Server {
	router := mux.NewRouter()
	router.HandleFunc("/metrics", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(registry.Gather()))
	})
	return &Server{
		registry: registry,
		server:   &http.Server{Addr: addr, Handler: router},
	}
}

// ListenAndServe blocks until the server is closed, matching the
// http.Server contract: returns http.ErrServerClosed on a clean Close.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Close shuts down the listener immediately.
func (s *Server) Close() error {
	return s.server.Close()
}
