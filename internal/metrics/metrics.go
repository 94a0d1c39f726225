// Package metrics runs memnoded's admin HTTP endpoint: a Prometheus
// scrape target plus process/host resource gauges, modeled on the
// teacher's server.go router/middleware wiring (gorilla/mux + gorilla/handlers)
// and its prometheus client_golang dependency.
package metrics

import (
	"context"
	"net/http"
	"os"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// StatsSource is whatever the admin endpoint reads gauges from;
// dispatch.Server satisfies it via Stats.
type StatsSource interface {
	Stats() Stats
}

// Stats mirrors dispatch.Stats without importing dispatch, keeping
// internal/metrics free of a dependency on the command dispatcher.
type Stats struct {
	CommandsTotal      int64
	WriteCommandsTotal int64
	ConnectedClients   int
	ReplicaCount       int
	KeyspaceSize       int
	MasterOffset       int64
}

var (
	commandsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memnode_commands_total",
		Help: "Total commands dispatched since process start.",
	})
	writeCommandsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memnode_write_commands_total",
		Help: "Total write commands dispatched since process start.",
	})
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_connected_clients",
		Help: "Currently connected client and replica-link connections.",
	})
	replicaCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_replicas",
		Help: "Currently registered replicas.",
	})
	keyspaceSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_keyspace_size",
		Help: "Number of live keys in the keyspace.",
	})
	masterOffset = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_master_offset_bytes",
		Help: "Cumulative bytes of write frames broadcast since process start.",
	})
	processCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_process_cpu_percent",
		Help: "CPU usage percent of the memnoded process.",
	})
	hostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_host_cpu_percent",
		Help: "CPU usage percent of the host the process runs on.",
	})
	hostMemUsedPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memnode_host_mem_used_percent",
		Help: "Memory usage percent of the host the process runs on.",
	})
)

// Server is the admin HTTP endpoint: a Prometheus scrape target at /metrics
// plus resource gauges refreshed on a fixed interval.
type Server struct {
	http   *http.Server
	source StatsSource
	proc   *process.Process
	stop   chan struct{}

	lastCommandsTotal      int64
	lastWriteCommandsTotal int64
}

func NewServer(addr string, source StatsSource) (*Server, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Use(handlers.CompressHandler)

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		source: source,
		proc:   proc,
		stop:   make(chan struct{}),
	}, nil
}

// Start begins serving /metrics and refreshing gauges every refreshInterval,
// both in background goroutines. Listen errors other than a clean Shutdown
// are logged, not returned, matching the teacher's fire-and-forget admin
// listener style.
func (s *Server) Start(refreshInterval time.Duration) {
	go s.refreshLoop(refreshInterval)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Errorf("metrics: admin endpoint stopped: %v", err)
		}
	}()
	cclog.Infof("metrics: admin endpoint listening on %s", s.http.Addr)
}

func (s *Server) refreshLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

// refresh re-samples dispatch.Stats and the host, advancing the two
// monotonic Counters by the delta since the last tick (Stats reports
// cumulative totals, Counter.Add wants the increment).
func (s *Server) refresh() {
	stats := s.source.Stats()
	commandsTotal.Add(float64(stats.CommandsTotal - s.lastCommandsTotal))
	writeCommandsTotal.Add(float64(stats.WriteCommandsTotal - s.lastWriteCommandsTotal))
	s.lastCommandsTotal = stats.CommandsTotal
	s.lastWriteCommandsTotal = stats.WriteCommandsTotal

	connectedClients.Set(float64(stats.ConnectedClients))
	replicaCount.Set(float64(stats.ReplicaCount))
	keyspaceSize.Set(float64(stats.KeyspaceSize))
	masterOffset.Set(float64(stats.MasterOffset))

	if pct, err := s.proc.CPUPercent(); err == nil {
		processCPUPercent.Set(pct)
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) == 1 {
		hostCPUPercent.Set(pcts[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		hostMemUsedPercent.Set(vm.UsedPercent)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	return s.http.Shutdown(ctx)
}
