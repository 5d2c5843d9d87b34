// Package metrics exposes the orchestrator's Prometheus gauges: task and
// worker counts by status, the current level, cumulative retries, and
// leased ports (spec.md §6).
package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/harrison/zerg/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the gauges for one orchestrator run. A dedicated
// registry (rather than the global default) keeps repeated test runs
// from colliding on duplicate registration.
type Registry struct {
	reg *prometheus.Registry

	TasksTotal      *prometheus.GaugeVec
	WorkersTotal    *prometheus.GaugeVec
	LevelCurrent    prometheus.Gauge
	RetryCountTotal prometheus.Gauge
	PortsLeased     prometheus.Gauge
}

// New builds a Registry with every gauge registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TasksTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "zerg_tasks_total", Help: "Number of tasks by status"},
			[]string{"status"},
		),
		WorkersTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "zerg_workers_total", Help: "Number of workers by status"},
			[]string{"status"},
		),
		LevelCurrent: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "zerg_level_current", Help: "The level currently being executed"},
		),
		RetryCountTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "zerg_retry_count_total", Help: "Cumulative number of task retries scheduled"},
		),
		PortsLeased: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "zerg_ports_leased", Help: "Number of ports currently leased by the port allocator"},
		),
	}

	reg.MustRegister(r.TasksTotal, r.WorkersTotal, r.LevelCurrent, r.RetryCountTotal, r.PortsLeased)
	return r
}

// UpdateFromState refreshes every gauge from a snapshot of the feature
// state: task/worker counts by status, the current level, cumulative
// retries across all tasks, and leased ports (derived from how many
// workers currently hold a non-nil Port).
func (r *Registry) UpdateFromState(fs *models.FeatureState) {
	taskCounts := make(map[models.TaskStatus]int)
	retries := 0
	for _, ts := range fs.Tasks {
		taskCounts[ts.Status]++
		retries += ts.RetryCount
	}
	r.TasksTotal.Reset()
	for status, n := range taskCounts {
		r.TasksTotal.WithLabelValues(string(status)).Set(float64(n))
	}

	workerCounts := make(map[models.WorkerStatus]int)
	leasedPorts := 0
	for _, ws := range fs.Workers {
		workerCounts[ws.Status]++
		if ws.Port != nil {
			leasedPorts++
		}
	}
	r.WorkersTotal.Reset()
	for status, n := range workerCounts {
		r.WorkersTotal.WithLabelValues(string(status)).Set(float64(n))
	}

	r.LevelCurrent.Set(float64(fs.CurrentLevel))
	r.RetryCountTotal.Set(float64(retries))
	r.PortsLeased.Set(float64(leasedPorts))
}

// Handler returns the Prometheus HTTP handler scoped to this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts a /metrics listener on 127.0.0.1:port and returns the
// server so the caller can shut it down. A zero port disables the
// listener and returns nil.
func (r *Registry) Serve(port int) (*http.Server, error) {
	if port == 0 {
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	return srv, nil
}

// Shutdown gracefully stops a server returned by Serve.
func Shutdown(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
